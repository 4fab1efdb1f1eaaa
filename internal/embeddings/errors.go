package embeddings

import "errors"

// ErrNoEmbedding indicates no stored embedding matched the lookup.
var ErrNoEmbedding = errors.New("no matching embedding")

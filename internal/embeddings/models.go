package embeddings

// knownDimensions lists hosted and server-side models whose width is fixed.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"text-embedding-3-large": 3072,
	"BAAI/bge-large-en-v1.5": 1024,
	"BAAI/bge-large-en":      1024,
}

// fastEmbedDimensions lists the models fastembed can load, by the names
// operators use and by fastembed's own names.
var fastEmbedDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}

func fastEmbedModelDimension(model string) (int, bool) {
	dim, ok := fastEmbedDimensions[model]
	return dim, ok
}

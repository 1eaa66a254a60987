// Package vector implements the similarity index used for enrichment lookups
// and near-duplicate draft detection. Records are L2-normalized embeddings
// searched exactly by inner product; storage and persistence are delegated to
// chromem-go.
package vector

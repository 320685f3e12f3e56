// Package llm wraps the generative-text oracle behind a retrying HTTP client
// and the response parsing helpers the discovery and workflow layers share.
package llm

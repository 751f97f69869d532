// Package memory implements retrieval of remote long-term memories, their
// injection into chat prompts via language-specific templates, and the entry
// point that hands completed conversation rounds to the buffering layer.
package memory

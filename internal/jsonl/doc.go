// Package jsonl reads source documents from JSON Lines files and writes the
// chunk, quarantine and summary outputs of a run.
//
// Malformed lines are skipped and counted rather than failing the file. Every
// accepted document keeps its exact input bytes so quarantine output can be
// byte-identical to the input.
package jsonl

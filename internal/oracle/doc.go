// Package oracle provides token cost oracles: batchable functions that return
// one token count per input text, in input order.
//
// The partitioning engine never inspects text content; everything it knows
// about a document comes from an Oracle. Providers are interchangeable and tests
// substitute deterministic fakes.
//
// # Providers
//
//   - tiktoken: BPE token counts via github.com/pkoukk/tiktoken-go
//     (cl100k_base by default, any encoding or OpenAI model name accepted)
//   - heuristic: bytes/4 estimate, no external data
//   - http: a tokenize endpoint speaking the llama.cpp server shape
//     (POST {"content": text} -> {"tokens": [...]}), with exponential backoff
//
// # Basic Usage
//
//	o, err := oracle.New(oracle.Config{Provider: "tiktoken", CacheSize: 10000})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Close()
//
//	counts, err := o.Count(ctx, []string{"first segment", "second segment"})
//
// # Caching
//
// New wraps providers in an LRU cache keyed by the SHA-256 of the text, so the
// delimiter and repeated segments are tokenized once per process.
//
// # Concurrency
//
// Providers report whether they are safe for concurrent use. New wraps unsafe
// providers with a weighted semaphore of size one so a worker pool can share
// them, trading throughput for correctness.
package oracle

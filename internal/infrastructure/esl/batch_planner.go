package esl

const (
	// DefaultMaxItemsPerBatch is the largest number of items sent in one request
	DefaultMaxItemsPerBatch = 999
	// DefaultMaxBytesPerBatch is the largest serialized request body, in bytes
	DefaultMaxBytesPerBatch = 10 * 1024 * 1024
)

// arrayOverhead accounts for the enclosing "[" and "]" of a JSON array
const arrayOverhead = 2

// SizeFunc returns the serialized size of a single item
type SizeFunc[T any] func(T) (int, error)

// PlanBatches splits items into consecutive batches holding at most maxCount
// items whose JSON array encoding stays within maxBytes.
//
// The running size starts at the array brackets and counts one separator per
// item beyond the first. An item that alone exceeds maxBytes is placed in a
// batch of its own rather than dropped. Batches are never empty and
// concatenating them yields items in their original order.
// Non-positive limits fall back to the defaults.
func PlanBatches[T any](items []T, maxCount, maxBytes int, size SizeFunc[T]) ([][]T, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxItemsPerBatch
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytesPerBatch
	}

	var batches [][]T
	current := make([]T, 0, min(maxCount, len(items)))
	currentSize := arrayOverhead

	for _, item := range items {
		n, err := size(item)
		if err != nil {
			return nil, err
		}

		if len(current) > 0 && (len(current) >= maxCount || currentSize+n+1 > maxBytes) {
			batches = append(batches, current)
			current = make([]T, 0, min(maxCount, len(items)))
			currentSize = arrayOverhead
		}

		if len(current) > 0 {
			currentSize++
		}
		current = append(current, item)
		currentSize += n
	}

	return append(batches, current), nil
}

// ChunkKeys splits keys into consecutive chunks of at most maxCount keys.
// Delete keys are small and uniform, so only the count limit applies.
func ChunkKeys(keys []string, maxCount int) [][]string {
	if len(keys) == 0 {
		return nil
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxItemsPerBatch
	}

	chunks := make([][]string, 0, (len(keys)+maxCount-1)/maxCount)
	for start := 0; start < len(keys); start += maxCount {
		end := min(start+maxCount, len(keys))
		chunks = append(chunks, keys[start:end:end])
	}
	return chunks
}

package repository

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithHistoryLimit sets how many records are kept per zone. Older records
// are overwritten once the limit is reached.
func WithHistoryLimit(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.limit = n
		}
	}
}

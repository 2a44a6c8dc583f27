package audio

// Drain reads from ch until it is closed, discarding all values. Use it to
// release a producer goroutine whose output is no longer wanted, such as the
// audio channel of a synthesis that was interrupted.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when abandoning a streaming channel
// mid-flight (e.g., the PCM channel of a cancelled synthesis call).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

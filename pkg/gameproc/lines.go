package gameproc

import (
	"bufio"
	"io"
)

// lineMsg is one item from a line reader. The final message has eof set,
// with err holding the read failure if the stream did not end cleanly.
type lineMsg struct {
	text string
	eof  bool
	err  error
}

// readLines scans r and forwards each line to out until EOF, a read error, or
// done is closed. out is closed on return.
func readLines(r io.Reader, out chan<- lineMsg, done <-chan struct{}) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case out <- lineMsg{text: scanner.Text()}:
		case <-done:
			return
		}
	}
	select {
	case out <- lineMsg{eof: true, err: scanner.Err()}:
	case <-done:
	}
}

package backend

// textStream yields one complete text and ends. Non-streaming provider
// replies are delivered through it.
type textStream struct {
	text string
	sent bool
}

func newTextStream(text string) *textStream {
	return &textStream{text: text}
}

func (s *textStream) Next() bool {
	if s.sent || s.text == "" {
		s.sent = true
		return false
	}
	s.sent = true
	return true
}

func (s *textStream) Text() string { return s.text }
func (s *textStream) Err() error   { return nil }
func (s *textStream) Close() error { return nil }

// Collect drains s and returns the concatenated text. It closes s.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var out []byte
	for s.Next() {
		out = append(out, s.Text()...)
	}
	return string(out), s.Err()
}

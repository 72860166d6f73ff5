package filters

import (
	"log/slog"

	"github.com/georgepadayatti/pdfstream/logging"
)

// SequenceErrorFunc is called when a member of a StreamsSequenceStream
// fails. The member is skipped.
type SequenceErrorFunc func(err error, member Source)

// StreamsSequenceStream concatenates the decoded bytes of several sources,
// pulling each member only when the previous one is exhausted.
type StreamsSequenceStream struct {
	*DecodeStream
	streams []Source
	onError SequenceErrorFunc
}

// NewStreamsSequenceStream concatenates streams. With a nil onError a
// failing member fails the whole sequence.
func NewStreamsSequenceStream(streams []Source, onError SequenceErrorFunc) *StreamsSequenceStream {
	maybeLength := 0
	for _, s := range streams {
		maybeLength += s.LengthHint()
	}
	s := &StreamsSequenceStream{streams: append([]Source(nil), streams...), onError: onError}
	s.DecodeStream = newDecodeStream(s, nil, maybeLength)
	return s
}

func (s *StreamsSequenceStream) readBlock() error {
	if len(s.streams) == 0 {
		s.eof = true
		return nil
	}
	member := s.streams[0]
	s.streams = s.streams[1:]

	chunk := member.GetBytes(0)
	if err := member.Err(); err != nil {
		if s.onError == nil {
			return err
		}
		logging.Logger().Warn("skipping failed stream in sequence", slog.Any("error", err))
		s.onError(err, member)
		return nil
	}

	bufferLength := s.bufferLength
	buffer := s.ensureBuffer(bufferLength + len(chunk))
	copy(buffer[bufferLength:], chunk)
	s.bufferLength = bufferLength + len(chunk)
	return nil
}

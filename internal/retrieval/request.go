package retrieval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRequest is returned for payloads that are not seq[,width[,height]].
var ErrMalformedRequest = errors.New("malformed frame request")

// Request is a parsed frame request. Height is accepted on the wire but
// resizing is driven by Width alone.
type Request struct {
	Seq    uint64
	Width  int
	Height int
}

// ParseRequest parses "seq", "seq,width" or "seq,width,height". Height is
// optional. Fields may carry surrounding whitespace.
func ParseRequest(payload []byte) (Request, error) {
	fields := strings.Split(string(payload), ",")
	if len(fields) > 3 {
		return Request{}, fmt.Errorf("%w: %d fields", ErrMalformedRequest, len(fields))
	}

	seq, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return Request{}, fmt.Errorf("%w: sequence %q", ErrMalformedRequest, strings.TrimSpace(fields[0]))
	}
	req := Request{Seq: seq}
	if len(fields) == 1 {
		return req, nil
	}

	if req.Width, err = parseDim(fields[1]); err != nil {
		return Request{}, fmt.Errorf("%w: width: %v", ErrMalformedRequest, err)
	}
	if len(fields) == 2 {
		return req, nil
	}
	if req.Height, err = parseDim(fields[2]); err != nil {
		return Request{}, fmt.Errorf("%w: height: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

func parseDim(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

// String renders the request in wire form.
func (r Request) String() string {
	if r.Width == 0 && r.Height == 0 {
		return strconv.FormatUint(r.Seq, 10)
	}
	if r.Height == 0 {
		return fmt.Sprintf("%d,%d", r.Seq, r.Width)
	}
	return fmt.Sprintf("%d,%d,%d", r.Seq, r.Width, r.Height)
}

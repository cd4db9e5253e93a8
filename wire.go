package local_server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMalformedRequest            = errors.New("local_server: malformed request")
	ErrUnsupportedTransferEncoding = errors.New("local_server: transfer-encoding not supported")
	ErrBodyTooLarge                = errors.New("local_server: request body too large")
)

// DefaultMaxBodyBytes bounds how much body ReadRequest will buffer.
const DefaultMaxBodyBytes = 2 << 20

// similar to readLineSlice() in net/textproto/reader.go
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		l, more, err := r.ReadLine()
		if err != nil {
			return "", err
		}
		if line == nil && !more {
			return string(l), nil
		}
		line = append(line, l...)
		if !more {
			break
		}
	}
	return string(line), nil
}

func readHeaders(r *bufio.Reader) (Headers, error) {
	headers := Headers{}
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading headers: %w", ErrMalformedRequest, err)
		}
		if len(line) == 0 {
			break
		}
		fs := strings.SplitN(line, ":", 2)
		if len(fs) != 2 || strings.TrimSpace(fs[0]) == "" {
			return nil, fmt.Errorf("%w: invalid header line %q", ErrMalformedRequest, line)
		}
		headers.Set(fs[0], strings.TrimSpace(fs[1]))
	}
	return headers, nil
}

// ReadRequest reads one HTTP/1.1 request. The body is read according to
// content-length; if the peer delivers fewer bytes the short body is
// returned as is and left for the Conductor to reject. io.EOF is returned
// unwrapped when the connection closes before a request line.
func ReadRequest(r *bufio.Reader, maxBody int) (*RequestObject, error) {
	req, err := readRequestHead(r)
	if err != nil {
		return nil, err
	}
	if err := readRequestBody(r, req, maxBody); err != nil {
		return nil, err
	}
	return req, nil
}

// readRequestHead reads the request line and headers.
func readRequestHead(r *bufio.Reader) (*RequestObject, error) {
	rl, err := readLine(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: reading request line: %w", ErrMalformedRequest, err)
	}
	fields := strings.Split(rl, " ")
	if len(fields) != 3 || !strings.HasPrefix(fields[2], "HTTP/1.") {
		return nil, fmt.Errorf("%w: invalid request line %q", ErrMalformedRequest, rl)
	}
	method, err := ParseMethod(fields[0])
	if err != nil {
		return nil, err
	}
	target := fields[1]
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		target = "/"
	}

	headers, err := readHeaders(r)
	if err != nil {
		return nil, err
	}
	if headers.Has("transfer-encoding") {
		return nil, ErrUnsupportedTransferEncoding
	}

	return &RequestObject{
		Context: RequestContext{Method: method, Path: target, Headers: headers},
		Body:    []byte{},
	}, nil
}

// readRequestBody fills req.Body from r.
func readRequestBody(r *bufio.Reader, req *RequestObject, maxBody int) error {
	n, ok, err := req.Context.Headers.ContentLength()
	if err != nil || !ok || n <= 0 {
		// A bad content-length is reported by the Conductor. Any body
		// bytes are left unread, so the connection must not be reused.
		return nil
	}
	if maxBody > 0 && n > maxBody {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, n)
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(n)))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading body: %w", ErrMalformedRequest, err)
	}
	req.Body = body
	return nil
}

// WriteResponse writes resp as an HTTP/1.1 response.
func WriteResponse(w io.Writer, resp *Response) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", resp.Status, StatusText(resp.Status))
	resp.Headers.Each(func(name, value string) {
		fmt.Fprintf(bw, "%s: %s\r\n", name, value)
	})
	bw.WriteString("\r\n")
	bw.Write(resp.Body)
	return bw.Flush()
}

package xswire

import "github.com/openxen/xsclient/pkg/xs"

// Requests is the OpFactories implementation for this package's wire
// format. The zero value is ready for use.
type Requests struct{}

// NewRequests returns an OpFactories bound to this package's wire format.
func NewRequests() Requests { return Requests{} }

func (Requests) Directory(path string) xs.RequestFactory {
	payload := EncodeList(path)
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpDirectory, rid, tid, payload), nil
	}
}

func (Requests) Read(path string) xs.RequestFactory {
	payload := EncodeList(path)
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpRead, rid, tid, payload), nil
	}
}

func (Requests) Write(path string, data []byte) xs.RequestFactory {
	payload := append(EncodeList(path), 0)
	payload = append(payload, data...)
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpWrite, rid, tid, payload), nil
	}
}

func (Requests) Watch(path, token string) xs.RequestFactory {
	payload := EncodeList(path, token)
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpWatch, rid, tid, payload), nil
	}
}

func (Requests) Unwatch(path, token string) xs.RequestFactory {
	payload := EncodeList(path, token)
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpUnwatch, rid, tid, payload), nil
	}
}

func (Requests) TransactionStart() xs.RequestFactory {
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpTransactionStart, rid, tid, nil), nil
	}
}

func (Requests) TransactionEnd(commit bool) xs.RequestFactory {
	marker := "F"
	if commit {
		marker = "T"
	}
	payload := EncodeList(marker)
	return func(tid, rid uint32) ([]byte, error) {
		return EncodePacket(xs.OpTransactionEnd, rid, tid, payload), nil
	}
}

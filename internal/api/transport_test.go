package api

import "testing"

func TestNewTransportInsecureSkipVerify(t *testing.T) {
	secure := newTransport(false)
	if secure.TLSClientConfig.InsecureSkipVerify {
		t.Error("newTransport(false) should validate TLS certificates")
	}

	insecure := newTransport(true)
	if !insecure.TLSClientConfig.InsecureSkipVerify {
		t.Error("newTransport(true) should skip TLS certificate validation")
	}
}

func TestNewTransportProxyFuncNonNil(t *testing.T) {
	tr := newTransport(false)
	if tr.Proxy == nil {
		t.Error("expected a non-nil proxy func honoring HTTP_PROXY/HTTPS_PROXY/NO_PROXY")
	}
}

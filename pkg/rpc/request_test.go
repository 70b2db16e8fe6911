package rpc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	uerrors "github.com/vango-dev/uidl/internal/errors"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		syncIDCheck bool
		want        *Request
	}{
		{
			name:        "all fields",
			body:        `{"csrfToken":"T","v-sid":4,"v-resync":true,"v-wsver":"1.0.0","v-cid":7,"rpc":[]}`,
			syncIDCheck: true,
			want: &Request{
				CSRFToken: "T", SyncID: 4, Resynchronize: true, WidgetsetVersion: "1.0.0",
				ClientID: 7, Invocations: []byte("[]"),
			},
		},
		{
			name:        "defaults",
			body:        `{}`,
			syncIDCheck: true,
			want:        &Request{CSRFToken: DefaultCSRFToken, SyncID: -1, ClientID: NoClientID, Invocations: []byte("[]")},
		},
		{
			name:        "empty token",
			body:        `{"csrfToken":"","v-cid":1,"rpc":null}`,
			syncIDCheck: true,
			want:        &Request{CSRFToken: DefaultCSRFToken, SyncID: -1, ClientID: 1, Invocations: []byte("[]")},
		},
		{
			name:        "sync id check disabled",
			body:        `{"csrfToken":"T","v-sid":4,"v-cid":2,"rpc":[]}`,
			syncIDCheck: false,
			want:        &Request{CSRFToken: "T", SyncID: -1, ClientID: 2, Invocations: []byte("[]")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest([]byte(tt.body), tt.syncIDCheck)
			if err != nil {
				t.Fatalf("ParseRequest() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRequest() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	_, err := ParseRequest([]byte(`{"v-cid":`), true)
	if !errors.Is(err, uerrors.New("U010")) {
		t.Fatalf("error = %v, want U010", err)
	}
	if uerrors.CategoryOf(err) != uerrors.CategoryMalformed {
		t.Errorf("CategoryOf() = %q, want malformed", uerrors.CategoryOf(err))
	}
}

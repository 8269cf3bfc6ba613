package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/trelliscrm/go-trellis/mocks"
	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
	"github.com/trelliscrm/go-trellis/pkg/session"
	"github.com/trelliscrm/go-trellis/pkg/store"
)

const (
	testUsername  = "operations@example.com"
	testAccessKey = "dIosJaKq9BsZaM3c"

	// Far enough in the future and past to stay on the right side of freshness checks for the
	// lifetime of this codebase.
	futureEpoch = 9999999999
	pastEpoch   = 1000
)

func response(status int, body string) *connector.Response {
	return &connector.Response{StatusCode: status, Body: []byte(body)}
}

func challengeBody(token string) string {
	return `{"success":true,"result":{"token":"` + token + `","expireTime":9999999999}}`
}

func loginBody(sessionID string) string {
	return `{"success":true,"result":{"sessionName":"` + sessionID + `"}}`
}

func errorBody(code, message string) string {
	return `{"success":false,"error":{"code":"` + code + `","message":"` + message + `"}}`
}

var _ = Describe("Manager", func() {
	var (
		ctx     context.Context
		ctrl    *gomock.Controller
		conn    *mocks.MockConnector
		backing *store.MemoryStore
		manager *session.Manager
		creds   session.Credentials
	)

	putDocument := func(doc *session.Document) {
		data, err := json.Marshal(doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(backing.Put(ctx, session.DefaultKey, data)).To(Succeed())
	}

	getDocument := func() *session.Document {
		data, err := backing.Get(ctx, session.DefaultKey)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		Expect(err).NotTo(HaveOccurred())
		var doc session.Document
		Expect(json.Unmarshal(data, &doc)).To(Succeed())
		return &doc
	}

	BeforeEach(func() {
		ctx = context.Background()
		ctrl = gomock.NewController(GinkgoT())
		conn = mocks.NewMockConnector(ctrl)
		backing = store.NewMemoryStore()
		manager = session.NewManager(session.Config{Store: backing, MaxRetries: 3})
		creds = session.Credentials{Username: testUsername, AccessKey: testAccessKey}
		DeferCleanup(func() {
			ctrl.Finish()
		})
	})

	Context("with a fresh cached session", func() {
		It("returns the cached id without network traffic", func() {
			putDocument(&session.Document{Token: "tok0", ExpireTime: futureEpoch, SessionID: "sid0"})

			id, err := manager.SessionID(ctx, conn, creds)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("sid0"))
		})
	})

	Context("with an empty store", func() {
		It("acquires a challenge, logs in, and persists the full document", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
					func(ctx context.Context, params url.Values) (*connector.Response, error) {
						Expect(params.Get("operation")).To(Equal("getchallenge"))
						Expect(params.Get("username")).To(Equal(testUsername))
						return response(http.StatusOK, challengeBody("tok1")), nil
					}),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).DoAndReturn(
					func(ctx context.Context, data url.Values) (*connector.Response, error) {
						Expect(data.Get("operation")).To(Equal("login"))
						Expect(data.Get("username")).To(Equal(testUsername))
						Expect(data.Get("accessKey")).To(Equal(session.LoginKey("tok1", testAccessKey)))
						return response(http.StatusOK, loginBody("sid1")), nil
					}),
			)

			id, err := manager.SessionID(ctx, conn, creds)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("sid1"))

			doc := getDocument()
			Expect(doc).NotTo(BeNil())
			Expect(doc.Token).To(Equal("tok1"))
			Expect(doc.ExpireTime).To(Equal(int64(futureEpoch)))
			Expect(doc.SessionID).To(Equal("sid1"))
		})

		It("reuses the persisted session on the next call without network traffic", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok1")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, loginBody("sid1")), nil),
			)

			first, err := manager.SessionID(ctx, conn, creds)
			Expect(err).NotTo(HaveOccurred())

			second, err := manager.SessionID(ctx, conn, creds)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})
	})

	Context("with an expired document", func() {
		BeforeEach(func() {
			putDocument(&session.Document{Token: "stale", ExpireTime: pastEpoch, SessionID: "oldsid"})
		})

		It("performs exactly one challenge round-trip before logging in", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok2")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, loginBody("sid2")), nil),
			)

			id, err := manager.SessionID(ctx, conn, creds)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("sid2"))
		})

		It("does not carry the old session id over to the new token", func() {
			// The challenge succeeds but login fails outright, leaving the refreshed document
			// behind: it must not contain oldsid.
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok2")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, errorBody("ACCESS_DENIED", "nope")), nil),
			)

			_, err := manager.SessionID(ctx, conn, creds)
			Expect(err).To(HaveOccurred())

			doc := getDocument()
			Expect(doc.Token).To(Equal("tok2"))
			Expect(doc.SessionID).To(BeEmpty())
		})
	})

	Context("when every challenge response is malformed", func() {
		It("consumes exactly the retry budget and reports exhaustion", func() {
			conn.EXPECT().Get(gomock.Any(), gomock.Any()).
				Return(response(http.StatusOK, "<html>oops</html>"), nil).
				Times(3)

			_, err := manager.SessionID(ctx, conn, creds)

			var exhausted *protocol.RetryExhaustedError
			Expect(errors.As(err, &exhausted)).To(BeTrue(), "got %v", err)
			Expect(exhausted.Attempts).To(Equal(3))
			var serverErr *protocol.ServerError
			Expect(errors.As(err, &serverErr)).To(BeFalse())
		})
	})

	Context("when the challenge endpoint reports an HTTP error", func() {
		It("fails with the observed status", func() {
			conn.EXPECT().Get(gomock.Any(), gomock.Any()).
				Return(response(http.StatusBadGateway, errorBody("GATEWAY", "bad")), nil)

			_, err := manager.SessionID(ctx, conn, creds)

			var statusErr *protocol.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue(), "got %v", err)
			Expect(statusErr.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Context("when login reports an invalidated session", func() {
		It("evicts the document and restarts from a fresh challenge", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok1")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, errorBody(protocol.CodeInvalidSessionID, "Invalid session")), nil),
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok2")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, loginBody("sid2")), nil),
			)

			id, err := manager.SessionID(ctx, conn, creds)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("sid2"))
			Expect(getDocument().Token).To(Equal("tok2"))
		})

		It("gives up after the second rejection and leaves the store evicted", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok1")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, errorBody(protocol.CodeInvalidCredentials, "Invalid credentials")), nil),
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok2")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, errorBody(protocol.CodeInvalidCredentials, "Invalid credentials")), nil),
			)

			_, err := manager.SessionID(ctx, conn, creds)
			Expect(err).To(MatchError(protocol.ErrCredentialsRejected))

			ok, err := backing.Exists(ctx, session.DefaultKey)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())
		})
	})

	Context("when login reports some other error", func() {
		It("surfaces the code and message verbatim and keeps the challenge document", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok1")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, errorBody("SOME_OTHER_ERROR", "the vault is sealed")), nil),
			)

			_, err := manager.SessionID(ctx, conn, creds)

			var serverErr *protocol.ServerError
			Expect(errors.As(err, &serverErr)).To(BeTrue(), "got %v", err)
			Expect(serverErr.Code).To(Equal("SOME_OTHER_ERROR"))
			Expect(serverErr.Message).To(Equal("the vault is sealed"))

			// Not an invalidation signal, so no eviction happens.
			Expect(getDocument()).NotTo(BeNil())
		})
	})

	Context("when login reports failure without an error object", func() {
		It("fails with a malformed-response error", func() {
			gomock.InOrder(
				conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, challengeBody("tok1")), nil),
				conn.EXPECT().PostForm(gomock.Any(), gomock.Any()).Return(response(http.StatusOK, `{"success":false}`), nil),
			)

			_, err := manager.SessionID(ctx, conn, creds)
			Expect(err).To(MatchError(protocol.ErrMalformedResponse))
		})
	})

	Context("with an unsupported session driver", func() {
		It("fails before any store or network access", func() {
			misconfigured := session.NewManager(session.Config{
				StoreConfig: store.Config{Driver: "cookies"},
			})

			_, err := misconfigured.SessionID(ctx, conn, creds)
			Expect(err).To(MatchError(protocol.ErrUnsupportedStore))
		})
	})

	Context("with transport failures inside the retry loop", func() {
		It("counts them against the budget and reports the last one", func() {
			transportErr := errors.New("connection refused")
			conn.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, transportErr).Times(3)

			_, err := manager.SessionID(ctx, conn, creds)

			var exhausted *protocol.RetryExhaustedError
			Expect(errors.As(err, &exhausted)).To(BeTrue(), "got %v", err)
			Expect(exhausted.Attempts).To(Equal(3))
			Expect(errors.Is(err, transportErr)).To(BeTrue())
		})
	})
})

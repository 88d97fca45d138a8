package api

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFullLifecycle walks one account through the complete client flow:
// registration, challenge-response login, pre-key publication, bundle
// fetch by a peer, message relay, offline drain, and logout.
func TestFullLifecycle(t *testing.T) {
	env := newTestEnv(t)

	alice := env.registerAccount(t, "alice")
	bobKeys := mustGenerateKey(t)

	// Bob registers and logs in.
	resp, envelope := env.doJSON(t, http.MethodPost, "/api/users/register", "", map[string]any{
		"username":            "bob",
		"identity_public_key": base64.StdEncoding.EncodeToString(bobKeys.public),
		"registration_id":     7,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var bob struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &bob))

	bobAccount := &testAccount{id: bob.ID, name: "bob", private: bobKeys.private}
	bobToken := env.login(t, bobAccount, "bob-phone")
	aliceToken := env.login(t, alice, "alice-phone")

	// Bob publishes his key material.
	resp, _ = env.doJSON(t, http.MethodPost, "/api/keys/signed-pre-key", bobToken, map[string]any{
		"key_id":     1,
		"public_key": "c2lnbmVkLXByZS1rZXk=",
		"signature":  "c2ln",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.doJSON(t, http.MethodPost, "/api/keys/one-time-pre-keys", bobToken, map[string]any{
		"keys": []map[string]any{{"key_id": 1, "public_key": "b3RrLTE="}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Alice fetches Bob's bundle to start a session.
	resp, envelope = env.doJSON(t, http.MethodGet, "/api/keys/bundle/"+bob.ID, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var bundle struct {
		Username       string `json:"username"`
		RegistrationID uint32 `json:"registration_id"`
		SignedPreKey   struct {
			KeyID uint32 `json:"key_id"`
		} `json:"signed_pre_key"`
		OneTimePreKey *struct {
			KeyID uint32 `json:"key_id"`
		} `json:"one_time_pre_key"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &bundle))
	require.Equal(t, "bob", bundle.Username)
	require.EqualValues(t, 7, bundle.RegistrationID)
	require.EqualValues(t, 1, bundle.SignedPreKey.KeyID)
	require.NotNil(t, bundle.OneTimePreKey)

	// Alice sends the first message; Bob is offline so it queues.
	resp, envelope = env.doJSON(t, http.MethodPost, "/api/messages/send", aliceToken, map[string]any{
		"recipient_id": bob.ID,
		"ciphertext":   "Y2lwaGVydGV4dA==",
		"message_type": "pre_key_signal_message",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sent struct {
		Delivered bool   `json:"delivered"`
		MessageID string `json:"message_id"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &sent))
	require.False(t, sent.Delivered)

	// Bob drains his queue.
	resp, envelope = env.doJSON(t, http.MethodGet, "/api/messages/offline", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []struct {
		ID          string `json:"id"`
		SenderID    string `json:"sender_id"`
		MessageType string `json:"message_type"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &messages))
	require.Len(t, messages, 1)
	require.Equal(t, sent.MessageID, messages[0].ID)
	require.Equal(t, alice.id, messages[0].SenderID)
	require.Equal(t, "pre_key_signal_message", messages[0].MessageType)

	// Logout invalidates the session.
	resp, _ = env.doJSON(t, http.MethodPost, "/api/auth/logout", bobToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.doJSON(t, http.MethodGet, "/api/messages/offline", bobToken, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type keyPair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

func mustGenerateKey(t *testing.T) keyPair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return keyPair{public: pub, private: priv}
}

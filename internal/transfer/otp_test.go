package transfer

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dilsidhu13/secdrop/internal/storage"
)

// uploadGated stores a one-chunk passphrase-protected transfer with a
// recipient and returns its id and plaintext.
func uploadGated(t *testing.T, env *testEnv) (string, []byte) {
	t.Helper()
	content := []byte("gated file contents")
	tr, err := env.protocol.UploadWhole(context.Background(), "gated.txt", "hunter2", "alice@example.com", bytes.NewReader(content))
	require.NoError(t, err)
	return tr.ID, content
}

func pendingCode(t *testing.T, env *testEnv, id string) string {
	t.Helper()
	tr, err := env.registry.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, tr.OTP, "expected a pending code")
	return tr.OTP
}

func TestRequestCode_GeneratesAndNotifies(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))

	code := pendingCode(t, env, id)
	assert.Len(t, code, 6)

	require.Len(t, env.notifier.messages, 1)
	assert.Contains(t, env.notifier.messages[0], code)
}

func TestRequestCode_UnknownTransfer(t *testing.T) {
	env := newTestEnv(t, Options{})

	err := env.protocol.RequestCode(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrTransferNotFound)
}

func TestRequestCode_NoRecipient(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()

	tr, err := env.protocol.UploadWhole(ctx, "plain.txt", "hunter2", "", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	err = env.protocol.RequestCode(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRequestCode_OverwritesPendingCode(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))
	first := pendingCode(t, env, id)

	require.NoError(t, env.protocol.RequestCode(ctx, id))
	second := pendingCode(t, env, id)

	if first == second {
		t.Skip("codes collided; 1-in-a-million, rerun")
	}

	var out bytes.Buffer
	_, err := env.protocol.VerifyAndDownload(ctx, id, first, "hunter2", &out)
	assert.ErrorIs(t, err, ErrInvalidCode, "only the latest code is valid")

	_, err = env.protocol.VerifyAndDownload(ctx, id, second, "hunter2", &out)
	assert.NoError(t, err)
}

func TestRequestCode_NotifierFailure(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	env.notifier.fail = true
	err := env.protocol.RequestCode(ctx, id)
	assert.ErrorIs(t, err, ErrNotifier)

	// the code stays pending so dispatch can be retried
	code := pendingCode(t, env, id)

	env.notifier.fail = false
	var out bytes.Buffer
	_, err = env.protocol.VerifyAndDownload(ctx, id, code, "hunter2", &out)
	assert.NoError(t, err)
}

func TestVerifyAndDownload_HappyPath(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, content := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))
	code := pendingCode(t, env, id)

	var out bytes.Buffer
	tr, err := env.protocol.VerifyAndDownload(ctx, id, code, "hunter2", &out)
	require.NoError(t, err)
	assert.Equal(t, "gated.txt", tr.Filename)
	assert.Equal(t, content, out.Bytes())
}

func TestVerifyAndDownload_WrongCode(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))

	var out bytes.Buffer
	_, err := env.protocol.VerifyAndDownload(ctx, id, "000000", "hunter2", &out)
	if pendingCode(t, env, id) == "000000" {
		t.Skip("generated code collided with the guess")
	}
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Zero(t, out.Len())
}

func TestVerifyAndDownload_NoPendingCode(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	var out bytes.Buffer
	_, err := env.protocol.VerifyAndDownload(ctx, id, "123456", "hunter2", &out)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyAndDownload_SingleUse(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))
	code := pendingCode(t, env, id)

	var out bytes.Buffer
	_, err := env.protocol.VerifyAndDownload(ctx, id, code, "hunter2", &out)
	require.NoError(t, err)

	_, err = env.protocol.VerifyAndDownload(ctx, id, code, "hunter2", &out)
	assert.ErrorIs(t, err, ErrInvalidCode, "a consumed code must not verify again")
}

func TestVerifyAndDownload_WrongPassphraseConsumesCode(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, _ := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))
	code := pendingCode(t, env, id)

	var out bytes.Buffer
	_, err := env.protocol.VerifyAndDownload(ctx, id, code, "wrong-passphrase", &out)
	assert.ErrorIs(t, err, ErrDecryptionFailed, "code and passphrase failures stay distinct")
	assert.Zero(t, out.Len())
}

func TestVerifyAndDownload_ConcurrentOneWinner(t *testing.T) {
	env := newTestEnv(t, Options{ChunkSize: 1 << 20})
	ctx := context.Background()
	id, content := uploadGated(t, env)

	require.NoError(t, env.protocol.RequestCode(ctx, id))
	code := pendingCode(t, env, id)

	const attempts = 16
	results := make([]error, attempts)
	outputs := make([]bytes.Buffer, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.protocol.VerifyAndDownload(ctx, id, code, "hunter2", &outputs[i])
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range results {
		if err == nil {
			winners++
			assert.Equal(t, content, outputs[i].Bytes())
		} else {
			assert.ErrorIs(t, err, ErrInvalidCode)
		}
	}
	assert.Equal(t, 1, winners, "exactly one verification may consume the code")
}

package backup

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/pocketmoney/internal/database"
	"github.com/dukerupert/pocketmoney/internal/model"
	"github.com/dukerupert/pocketmoney/internal/store"
)

type mockS3 struct {
	objects map[string][]byte
	err     error
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	data := make([]byte, *in.ContentLength)
	if _, err := io.ReadFull(in.Body, data); err != nil {
		return nil, err
	}
	m.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func seedLedger(t *testing.T, db *sql.DB) string {
	t.Helper()
	ctx := context.Background()
	fs := store.NewFamilyStore(db)
	fam, err := fs.Create(ctx, "Backup")
	if err != nil {
		t.Fatal(err)
	}
	kid, err := fs.AddMember(ctx, fam.ID, "Kid", model.RoleKid)
	if err != nil {
		t.Fatal(err)
	}
	err = store.InTx(ctx, db, func(tx *sql.Tx) error {
		_, err := store.NewLedgerStore(tx).Append(ctx, &model.LedgerEntry{
			KidID: kid.ID, FamilyID: fam.ID, Delta: 42, Reason: model.ReasonAdjustment,
		})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return kid.ID
}

func TestCreateAndRestore(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	kidID := seedLedger(t, db)

	dir := t.TempDir()
	out := filepath.Join(dir, "snap.enc")
	mock := &mockS3{objects: map[string][]byte{}}
	uploader := &S3Uploader{client: mock, bucket: "b", prefix: "pm/"}

	res, err := Create(context.Background(), db, Options{Passphrase: "pw", OutPath: out, Uploader: uploader}, slog.Default())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Uploaded || res.Path != out || res.ID == "" {
		t.Errorf("result = %+v", res)
	}
	history, err := History(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != res.ID || history[0].Status != model.BackupCompleted || history[0].SizeBytes != res.Size {
		t.Errorf("history = %+v", history)
	}
	if _, ok := mock.objects["b/pm/"+res.Key]; !ok {
		t.Errorf("object not uploaded, have %v", mock.objects)
	}

	restored := filepath.Join(dir, "restored.db")
	version, err := Restore(out, restored, "pw")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if version < 5 {
		t.Errorf("version = %d, want >= 5", version)
	}

	rdb, err := database.Open(restored)
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()
	bal, err := store.NewLedgerStore(rdb).Balance(context.Background(), kidID)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 42 {
		t.Errorf("restored balance = %d, want 42", bal)
	}

	if _, err := Restore(out, restored, "pw"); err == nil {
		t.Error("restore over an existing file should fail")
	}
	if _, err := Restore(out, filepath.Join(dir, "other.db"), "bad"); err == nil {
		t.Error("restore with wrong passphrase should fail")
	}
}

func TestCreateUploadFailure(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	uploader := &S3Uploader{client: &mockS3{err: errors.New("503")}, bucket: "b"}
	if _, err := Create(context.Background(), db, Options{Passphrase: "pw", Uploader: uploader}, slog.Default()); err == nil {
		t.Error("expected upload error")
	}
	if _, err := Create(context.Background(), db, Options{Passphrase: "pw"}, slog.Default()); err == nil {
		t.Error("expected error without destination")
	}

	// Only the upload attempt reached the history.
	history, err := History(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Status != model.BackupFailed || history[0].Uploaded {
		t.Fatalf("history = %+v", history)
	}
	if !strings.Contains(history[0].ErrorMessage, "503") {
		t.Errorf("error message = %q", history[0].ErrorMessage)
	}
}

func TestS3ConfigEnabled(t *testing.T) {
	if (S3Config{Bucket: "b"}).Enabled() {
		t.Error("bucket alone should not enable uploads")
	}
	if !(S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}).Enabled() {
		t.Error("full credentials should enable uploads")
	}
}

package backup

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/sftp"

	"github.com/TheGojiOG/vuserver/internal/config"
)

func TestLocalDestinationUploadDownloadDelete(t *testing.T) {
	baseDir := filepath.Join(t.TempDir(), "backups")
	ld := NewLocalDestination(baseDir)

	content := []byte("backup-data")
	if err := ld.Upload("test.tar.gz", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if !ld.Exists("test.tar.gz") {
		t.Fatalf("expected backup file to exist")
	}

	var buf bytes.Buffer
	if err := ld.Download("test.tar.gz", &buf); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("downloaded content mismatch")
	}

	files, err := ld.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}

	if err := ld.Delete("test.tar.gz"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if ld.Exists("test.tar.gz") {
		t.Fatalf("expected backup file to be removed")
	}
}

func TestLocalDestinationSizeMismatch(t *testing.T) {
	ld := NewLocalDestination(t.TempDir())
	if err := ld.Upload("short.tar.gz", strings.NewReader("abc"), 10); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if ld.Exists("short.tar.gz") || ld.Exists("short.tar.gz.part") {
		t.Fatalf("expected partial upload to be removed")
	}
}

func TestNewDestinationInvalidType(t *testing.T) {
	_, err := NewDestination(config.BackupDestinationConfig{Type: "invalid", Path: os.TempDir()})
	if err == nil {
		t.Fatalf("expected error for invalid destination type")
	}

	if _, err := NewDestination(config.BackupDestinationConfig{Type: "local"}); err == nil {
		t.Fatalf("expected error for local destination without path")
	}

	if _, err := NewDestination(config.BackupDestinationConfig{Type: "sftp"}); err == nil {
		t.Fatalf("expected error for sftp destination without host")
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	deleted []string
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.StringValue(in.Key))
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2Pages(in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	page := &s3.ListObjectsV2Output{}
	for key, data := range f.objects {
		if !strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			continue
		}
		page.Contents = append(page.Contents, &s3.Object{
			Key:          aws.String(key),
			Size:         aws.Int64(int64(len(data))),
			LastModified: aws.Time(time.Unix(1700000000, 0)),
		})
	}
	fn(page, true)
	return nil
}

func TestS3DestinationUsesPrefix(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{
		"vu/instance-1/backup-1.tar.gz": []byte("one"),
		"vu/instance-1/":                nil,
		"other/backup-2.tar.gz":         []byte("two"),
	}}
	dest := newS3DestinationWithClient(client, "bucket", "/vu/instance-1/")

	if got := dest.Location(); got != "s3://bucket/vu/instance-1" {
		t.Fatalf("unexpected location %q", got)
	}

	files, err := dest.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "backup-1.tar.gz" || files[0].SizeBytes != 3 {
		t.Fatalf("unexpected listing: %+v", files)
	}

	var buf bytes.Buffer
	if err := dest.Download("backup-1.tar.gz", &buf); err != nil || buf.String() != "one" {
		t.Fatalf("download failed: %q %v", buf.String(), err)
	}

	if err := dest.Delete("backup-1.tar.gz"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != "vu/instance-1/backup-1.tar.gz" {
		t.Fatalf("unexpected delete keys: %v", client.deleted)
	}
}

func newInMemorySFTP(t *testing.T) *sftp.Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()

	server := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	if err != nil {
		t.Fatalf("failed to create sftp client: %v", err)
	}
	return client
}

func TestSFTPDestinationRoundTrip(t *testing.T) {
	client := newInMemorySFTP(t)
	dest := newSFTPDestinationWithClient(client, "/backups")
	defer dest.Close()

	if err := client.MkdirAll("/backups"); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	content := []byte("sftp-backup")
	if err := dest.Upload("backup-1.tar.gz", bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	files, err := dest.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "backup-1.tar.gz" {
		t.Fatalf("unexpected listing: %+v", files)
	}

	var buf bytes.Buffer
	if err := dest.Download("backup-1.tar.gz", &buf); err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), content) {
		t.Fatalf("downloaded content mismatch")
	}

	if err := dest.Delete("backup-1.tar.gz"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
}

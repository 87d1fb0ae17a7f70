package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
	"github.com/ruteri/heirloom/interfaces"
)

// IPFSBackend stores keys as files in the mutable file system (MFS) of an IPFS
// node. Each key is one flat file under the root directory; slashes in keys
// are path-escaped so List needs a single directory listing.
type IPFSBackend struct {
	shell       *shell.Shell
	host        string
	port        string
	root        string
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewIPFSBackend creates a new IPFS storage backend connected to the node API at host:port.
func NewIPFSBackend(host, port, root string, timeout time.Duration, log *slog.Logger) (*IPFSBackend, error) {
	if root == "" || root == "/" {
		root = "/heirloom"
	}
	root = "/" + strings.Trim(root, "/")

	apiURL := fmt.Sprintf("%s:%s", host, port)
	sh := shell.NewShell(apiURL)
	sh.SetTimeout(timeout)

	return &IPFSBackend{
		shell:       sh,
		host:        host,
		port:        port,
		root:        root,
		timeout:     timeout,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s%s?timeout=%s", apiURL, root, timeout),
	}, nil
}

// Get reads the MFS file for key.
func (b *IPFSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	filePath := b.getMFSPath(key)

	reader, err := b.shell.FilesRead(ctx, filePath)
	if err != nil {
		if isMFSNotFound(err) {
			b.log.Debug("Content not found in IPFS",
				slog.String("path", filePath),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("%w: failed to read from IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read IPFS content: %w", err)
	}

	b.log.Debug("Fetched content from IPFS",
		slog.String("path", filePath),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Put writes key, creating the root directory on first use.
func (b *IPFSBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	filePath := b.getMFSPath(key)
	err := b.shell.FilesWrite(ctx, filePath, bytes.NewReader(data),
		shell.FilesWrite.Create(true),
		shell.FilesWrite.Parents(true),
		shell.FilesWrite.Truncate(true))
	if err != nil {
		return fmt.Errorf("%w: failed to write to IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in IPFS", slog.String("path", filePath))
	return nil
}

// Delete removes the MFS file for key. Missing files are ignored.
func (b *IPFSBackend) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := b.shell.FilesRm(ctx, b.getMFSPath(key), true); err != nil && !isMFSNotFound(err) {
		return fmt.Errorf("%w: failed to delete from IPFS: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// List lists the root directory and filters unescaped names by prefix.
func (b *IPFSBackend) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := b.shell.FilesLs(ctx, b.root)
	if err != nil {
		if isMFSNotFound(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: failed to list IPFS directory: %v", interfaces.ErrBackendUnavailable, err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		key, err := url.PathUnescape(entry.Name)
		if err != nil {
			b.log.Warn("Skipping unexpected IPFS entry", slog.String("name", entry.Name), "err", err)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Available checks if the IPFS node API responds.
func (b *IPFSBackend) Available(ctx context.Context) bool {
	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *IPFSBackend) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, strings.Trim(b.root, "/"))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *IPFSBackend) LocationURI() string {
	return b.locationURI
}

func (b *IPFSBackend) getMFSPath(key string) string {
	return path.Join(b.root, url.PathEscape(key))
}

func isMFSNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") || strings.Contains(msg, "no link named")
}

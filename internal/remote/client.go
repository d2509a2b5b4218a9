// Package remote maintains the SSH/SFTP session to the tablet and exposes
// the handful of operations the filesystem engine needs: stat, whole-file
// reads, ranged reads, and the descriptor search used for child discovery.
package remote

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/ykpmusicstudio/remarkablemount/internal/logging"
	"github.com/ykpmusicstudio/remarkablemount/internal/metrics"
)

const dialTimeout = 10 * time.Second

// Client is a connected SSH session with an SFTP subsystem. All methods
// are synchronous; a slow device stalls the caller.
type Client struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

// Dial connects to the tablet and authenticates with a password. The
// tablet only offers password auth over its USB network interface, and
// regenerates its host key on factory reset, so host keys are not pinned.
func Dial(host string, port int, user, password string) (*Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         dialTimeout,
	}

	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sftpc, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp subsystem: %w", err)
	}

	logging.Info("connected", zap.String("addr", addr), zap.String("user", user))
	return &Client{ssh: conn, sftp: sftpc}, nil
}

// Close tears down the SFTP subsystem and the SSH connection.
func (c *Client) Close() error {
	if c.sftp != nil {
		c.sftp.Close()
	}
	if c.ssh != nil {
		return c.ssh.Close()
	}
	return nil
}

// Stat queries attributes of a single remote path.
func (c *Client) Stat(p string) (FileStat, error) {
	info, err := c.sftp.Stat(p)
	if err != nil {
		metrics.RemoteCall("stat", err)
		return FileStat{}, fmt.Errorf("stat %s: %w", p, err)
	}
	metrics.RemoteCall("stat", nil)

	st := FileStat{
		Path: p,
		Size: info.Size(),
		Perm: uint32(info.Mode().Perm()),
	}
	if raw, ok := info.Sys().(*sftp.FileStat); ok {
		st.UID = raw.UID
		st.GID = raw.GID
		st.Atime = int64(raw.Atime)
		st.Mtime = int64(raw.Mtime)
	} else {
		st.Mtime = info.ModTime().Unix()
		st.Atime = st.Mtime
	}
	return st, nil
}

// StatMany stats each path in order, short-circuiting on the first
// failure.
func (c *Client) StatMany(paths []string) ([]FileStat, error) {
	stats := make([]FileStat, 0, len(paths))
	for _, p := range paths {
		st, err := c.Stat(p)
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, nil
}

// ReadAll reads an entire remote file as text. Descriptor and content
// records are small, a few hundred bytes each.
func (c *Client) ReadAll(p string) (string, error) {
	f, err := c.sftp.Open(p)
	if err != nil {
		metrics.RemoteCall("read_all", err)
		return "", fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	metrics.RemoteCall("read_all", err)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return string(data), nil
}

// ReadAt reads len(buf) bytes from the remote file starting at offset.
// A short read at end of file is returned with the byte count and no
// error.
func (c *Client) ReadAt(p string, offset int64, buf []byte) (int, error) {
	f, err := c.sftp.Open(p)
	if err != nil {
		metrics.RemoteCall("read_at", err)
		return 0, fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	n, err := f.ReadAt(buf, offset)
	if err == io.EOF && n > 0 {
		err = nil
	}
	metrics.RemoteCall("read_at", err)
	if err != nil {
		return n, fmt.Errorf("read %s at %d: %w", p, offset, err)
	}
	metrics.BytesRead(n)
	return n, nil
}

// Run executes a command on the device and returns its stdout.
func (c *Client) Run(command string) (string, error) {
	sess, err := c.ssh.NewSession()
	if err != nil {
		metrics.RemoteCall("exec", err)
		return "", fmt.Errorf("new session: %w", err)
	}
	defer sess.Close()

	logging.Debug("remote command", zap.String("cmd", command))
	out, err := sess.Output(command)
	metrics.RemoteCall("exec", err)
	if err != nil {
		// grep exits 1 when nothing matches; an empty child set is
		// not a transport failure.
		if exitErr, ok := err.(*ssh.ExitError); ok && exitErr.ExitStatus() == 1 {
			return "", nil
		}
		return "", fmt.Errorf("exec %q: %w", command, err)
	}
	return string(out), nil
}

// FindDescriptorsByParent lists descriptor files under root whose
// embedded parent field equals parentID, and stats each match. This is
// the only place remote shell commands are constructed.
func (c *Client) FindDescriptorsByParent(root, parentID string) ([]FileStat, error) {
	out, err := c.Run(grepCommand(root, parentID))
	if err != nil {
		return nil, err
	}
	files := splitFileList(out)
	logging.Debug("descriptor search",
		zap.String("parent", parentID),
		zap.Int("matches", len(files)))
	return c.StatMany(files)
}

// grepCommand builds the remote search for descriptors declaring the
// given parent id. The pattern and root are single-quoted so an id can
// never escape into shell syntax; the glob stays outside the quotes.
func grepCommand(root, parentID string) string {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	pattern := fmt.Sprintf(`"parent": "%s"`, parentID)
	return fmt.Sprintf("grep -l %s %s*.metadata", shellQuote(pattern), shellQuote(root))
}

// shellQuote wraps s in single quotes, escaping any embedded single
// quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// splitFileList parses newline-separated grep -l output, dropping empty
// lines.
func splitFileList(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files
}

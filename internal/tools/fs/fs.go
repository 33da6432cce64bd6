// Package fs implements the filesystem tool: workspace-rooted file
// operations plus send_file attachment emission.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tessel-ai/tessel/internal/agent"
	"github.com/tessel-ai/tessel/internal/config"
	"github.com/tessel-ai/tessel/pkg/models"
)

// mimeByExtension classifies send_file payloads. Unknown extensions
// fall back to application/octet-stream.
var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".csv":  "text/csv",
	".zip":  "application/zip",
	".txt":  "text/plain",
	".json": "application/json",
	".yml":  "text/yaml",
	".yaml": "text/yaml",
	".py":   "text/x-python",
	".java": "text/x-java",
	".js":   "text/javascript",
	".ts":   "text/typescript",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
}

// MimeFor returns the MIME type for a filename.
func MimeFor(name string) string {
	if m, ok := mimeByExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return "application/octet-stream"
}

// AttachmentTypeFor maps a MIME type to the attachment class: IMAGE
// for image/*, DOCUMENT otherwise.
func AttachmentTypeFor(mime string) models.AttachmentType {
	if strings.HasPrefix(mime, "image/") {
		return models.AttachmentImage
	}
	return models.AttachmentDocument
}

type params struct {
	Operation string `json:"operation"`
	Path      string `json:"path"`
	Content   *string `json:"content,omitempty"`
	Append    bool   `json:"append,omitempty"`
}

// Tool is the filesystem executor.
type Tool struct{}

// New creates the filesystem tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "filesystem" }

func (t *Tool) Description() string {
	return "Read, write, list, and manage files inside the agent workspace. send_file delivers a file to the user."
}

func (t *Tool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"operation": {
				"type": "string",
				"enum": ["read_file", "write_file", "list_directory", "create_directory", "delete", "file_info", "send_file"]
			},
			"path": {"type": "string", "description": "Path relative to the workspace root"},
			"content": {"type": "string", "description": "Content for write_file"},
			"append": {"type": "boolean", "description": "Append instead of overwrite"}
		},
		"required": ["operation", "path"]
	}`)
}

func (t *Tool) Enabled(snap *config.Snapshot) bool { return snap.IsFilesystemEnabled() }

func (t *Tool) Execute(_ context.Context, tc *agent.Context, raw json.RawMessage) (*models.ToolResult, error) {
	var p params
	if err := agent.ParseParams(raw, &p); err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	root := tc.Snapshot.Workspace()
	path, err := resolve(root, p.Path)
	if err != nil {
		return models.Fail(models.FailureValidation, err.Error()), nil
	}

	switch p.Operation {
	case "read_file":
		return t.readFile(path)
	case "write_file":
		return t.writeFile(path, p)
	case "list_directory":
		return t.listDirectory(path)
	case "create_directory":
		return t.createDirectory(path, p.Path)
	case "delete":
		return t.delete(path, p.Path)
	case "file_info":
		return t.fileInfo(path, p.Path)
	case "send_file":
		return t.sendFile(path)
	default:
		return models.Fail(models.FailureValidation, fmt.Sprintf("unknown operation %q", p.Operation)), nil
	}
}

// resolve joins a relative path onto the workspace root and rejects
// anything that escapes it. Symlinks are resolved before the
// containment check so a link inside the workspace cannot point out.
func resolve(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("workspace root is not configured")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("workspace root: %w", err)
	}
	if r, err := filepath.EvalSymlinks(absRoot); err == nil {
		absRoot = r
	}
	joined := filepath.Clean(filepath.Join(absRoot, filepath.FromSlash(rel)))
	canonical, err := canonicalize(joined)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if canonical != absRoot && !strings.HasPrefix(canonical, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal / Invalid path: %s", rel)
	}
	return canonical, nil
}

// canonicalize resolves symlinks in path. Components that do not exist
// yet are joined back onto their deepest existing ancestor.
func canonicalize(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir, base := filepath.Split(filepath.Clean(path))
	dir = filepath.Clean(dir)
	if dir == path {
		return path, nil
	}
	parent, err := canonicalize(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

func (t *Tool) readFile(path string) (*models.ToolResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.Fail(models.FailureNotFound, "file not found: "+path), nil
	}
	if err != nil {
		return models.Fail(models.FailureInternalError, "read failed: "+err.Error()), nil
	}
	return models.OK(string(data)), nil
}

func (t *Tool) writeFile(path string, p params) (*models.ToolResult, error) {
	if p.Content == nil {
		return models.Fail(models.FailureValidation, "write_file requires content"), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return models.Fail(models.FailureInternalError, "create parent directory: "+err.Error()), nil
	}
	if p.Append {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return models.Fail(models.FailureInternalError, "open for append: "+err.Error()), nil
		}
		defer f.Close()
		if _, err := f.WriteString(*p.Content); err != nil {
			return models.Fail(models.FailureInternalError, "append failed: "+err.Error()), nil
		}
		return models.OK(fmt.Sprintf("Appended %d bytes to %s", len(*p.Content), filepath.Base(path))), nil
	}
	if err := os.WriteFile(path, []byte(*p.Content), 0o644); err != nil {
		return models.Fail(models.FailureInternalError, "write failed: "+err.Error()), nil
	}
	return models.OK(fmt.Sprintf("Wrote %d bytes to %s", len(*p.Content), filepath.Base(path))), nil
}

func (t *Tool) listDirectory(path string) (*models.ToolResult, error) {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return models.Fail(models.FailureNotFound, "directory not found: "+path), nil
	}
	if err != nil {
		return models.Fail(models.FailureInternalError, "list failed: "+err.Error()), nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return models.OK("(empty directory)"), nil
	}
	return models.OK(strings.Join(names, "\n")), nil
}

func (t *Tool) createDirectory(path, rel string) (*models.ToolResult, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return models.OK(fmt.Sprintf("Directory %s already exists", rel)), nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return models.Fail(models.FailureInternalError, "create directory: "+err.Error()), nil
	}
	return models.OK(fmt.Sprintf("Created directory %s", rel)), nil
}

func (t *Tool) delete(path, rel string) (*models.ToolResult, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return models.Fail(models.FailureNotFound, "not found: "+rel), nil
	}
	if err := os.RemoveAll(path); err != nil {
		return models.Fail(models.FailureInternalError, "delete failed: "+err.Error()), nil
	}
	return models.OK(fmt.Sprintf("Deleted %s", rel)), nil
}

func (t *Tool) fileInfo(path, rel string) (*models.ToolResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return models.Fail(models.FailureNotFound, "not found: "+rel), nil
	}
	if err != nil {
		return models.Fail(models.FailureInternalError, "stat failed: "+err.Error()), nil
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return models.OK(fmt.Sprintf("%s: %s, %d bytes, modified %s",
		rel, kind, info.Size(), info.ModTime().UTC().Format("2006-01-02 15:04:05"))), nil
}

func (t *Tool) sendFile(path string) (*models.ToolResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return models.Fail(models.FailureNotFound, "file not found: "+path), nil
	}
	if err != nil {
		return models.Fail(models.FailureInternalError, "read failed: "+err.Error()), nil
	}
	mime := MimeFor(path)
	att := models.Attachment{
		Type:     AttachmentTypeFor(mime),
		Filename: filepath.Base(path),
		MimeType: mime,
		Bytes:    data,
	}
	result := models.OK(fmt.Sprintf("Sent %s (%s, %d bytes)", att.Filename, mime, len(data)))
	return result.WithData(agent.DataAttachments, []models.Attachment{att}), nil
}

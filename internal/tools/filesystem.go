package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crystaldolphin/crystaldolphin/internal/errs"
)

// systemRootBlacklist are absolute path prefixes the filesystem tools refuse
// to touch regardless of workspace restriction settings.
var systemRootBlacklist = []string{"/etc", "/sys", "/proc", "/dev", "/boot"}

// maxReadBytes caps how much of a file fs.read returns.
const maxReadBytes = 10 * 1024 * 1024

// resolvePath canonicalizes path against workspace (when relative), rejects
// any resolution that escapes allowedDir via a symlink or ".." traversal, and
// refuses system root directories outright.
func resolvePath(path, workspace, allowedDir string) (string, error) {
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(workspace, p)
	}

	resolved := filepath.Clean(p)
	if real, err := filepath.EvalSymlinks(p); err == nil {
		resolved = real
	}

	for _, blocked := range systemRootBlacklist {
		if resolved == blocked || strings.HasPrefix(resolved, blocked+string(filepath.Separator)) {
			return "", errs.New(errs.PermissionDenied, "path targets a system directory: "+blocked)
		}
	}

	if allowedDir != "" {
		allowedResolved := filepath.Clean(allowedDir)
		if real, err := filepath.EvalSymlinks(allowedDir); err == nil {
			allowedResolved = real
		}
		if resolved != allowedResolved && !strings.HasPrefix(resolved, allowedResolved+string(filepath.Separator)) {
			return "", errs.New(errs.PermissionDenied, "path escapes workspace: "+path)
		}
	}
	return resolved, nil
}

// ---------------------------------------------------------------------------
// fs.read
// ---------------------------------------------------------------------------

type ReadFileTool struct {
	workspace  string
	allowedDir string
}

func NewReadFileTool(workspace, allowedDir string) *ReadFileTool {
	return &ReadFileTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *ReadFileTool) Name() string        { return "fs.read" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file at the given path, up to 10MB." }
func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "The file path to read"}},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return "", errs.New(errs.InvalidArguments, "path is required")
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(fp)
	if err != nil {
		return "", errs.New(errs.NotFound, "file not found: "+path)
	}
	if !info.Mode().IsRegular() {
		return "", errs.New(errs.InvalidArguments, "not a regular file: "+path)
	}
	if info.Size() > maxReadBytes {
		return "", errs.New(errs.InvalidArguments, fmt.Sprintf("file exceeds %d byte read cap", maxReadBytes))
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return "", errs.Wrap(errs.Storage, "read file", err)
	}
	return string(data), nil
}

// ---------------------------------------------------------------------------
// fs.write
// ---------------------------------------------------------------------------

type WriteFileTool struct {
	workspace  string
	allowedDir string
}

func NewWriteFileTool(workspace, allowedDir string) *WriteFileTool {
	return &WriteFileTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *WriteFileTool) Name() string { return "fs.write" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file at the given path, creating parent directories as needed."
}
func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "The file path to write to"},
			"content": {"type": "string", "description": "The content to write"}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	if path == "" {
		return "", errs.New(errs.InvalidArguments, "path is required")
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return "", errs.Wrap(errs.Storage, "create parent directories", err)
	}
	if err := os.WriteFile(fp, []byte(content), 0o644); err != nil {
		return "", errs.Wrap(errs.Storage, "write file", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// ---------------------------------------------------------------------------
// fs.list
// ---------------------------------------------------------------------------

type ListDirTool struct {
	workspace  string
	allowedDir string
}

func NewListDirTool(workspace, allowedDir string) *ListDirTool {
	return &ListDirTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *ListDirTool) Name() string        { return "fs.list" }
func (t *ListDirTool) Description() string { return "List the contents of a directory." }
func (t *ListDirTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "The directory path to list"}},
		"required": ["path"]
	}`)
}

func (t *ListDirTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return "", errs.New(errs.InvalidArguments, "path is required")
	}
	dp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dp)
	if err != nil {
		return "", errs.New(errs.NotFound, "directory not found: "+path)
	}
	if !info.IsDir() {
		return "", errs.New(errs.InvalidArguments, "not a directory: "+path)
	}
	entries, err := os.ReadDir(dp)
	if err != nil {
		return "", errs.Wrap(errs.Storage, "read directory", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("directory %s is empty", path), nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var lines []string
	for _, e := range entries {
		prefix := "[F] "
		if e.IsDir() {
			prefix = "[D] "
		}
		lines = append(lines, prefix+e.Name())
	}
	return strings.Join(lines, "\n"), nil
}

// ---------------------------------------------------------------------------
// fs.delete
// ---------------------------------------------------------------------------

type DeleteFileTool struct {
	workspace  string
	allowedDir string
}

func NewDeleteFileTool(workspace, allowedDir string) *DeleteFileTool {
	return &DeleteFileTool{workspace: workspace, allowedDir: allowedDir}
}

func (t *DeleteFileTool) Name() string { return "fs.delete" }
func (t *DeleteFileTool) Description() string {
	return "Delete a single file (not a directory) at the given path."
}
func (t *DeleteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "The file path to delete"}},
		"required": ["path"]
	}`)
}

func (t *DeleteFileTool) Execute(_ context.Context, params map[string]any) (string, error) {
	path, _ := params["path"].(string)
	if path == "" {
		return "", errs.New(errs.InvalidArguments, "path is required")
	}
	fp, err := resolvePath(path, t.workspace, t.allowedDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(fp)
	if err != nil {
		return "", errs.New(errs.NotFound, "file not found: "+path)
	}
	if info.IsDir() {
		return "", errs.New(errs.InvalidArguments, "refusing to delete a directory: "+path)
	}
	if err := os.Remove(fp); err != nil {
		return "", errs.Wrap(errs.Storage, "delete file", err)
	}
	return "deleted " + path, nil
}

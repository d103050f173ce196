package filesystem

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockFileSystem implements FileSystem in memory for tests. Files carry
// independent created/modified/accessed times, and individual operations can
// be made to fail per path.
type MockFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	times map[string]FileTimes
	dirs  map[string]bool

	openErrs    map[string]error
	createErrs  map[string]error
	statErrs    map[string]error
	removeErrs  map[string]error
	renameErrs  map[string]error
	chtimesErrs map[string]error

	RemoveCalls  []string
	RenameCalls  [][2]string
	ChtimesCalls []string
}

// NewMockFileSystem creates an empty in-memory filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		files:       make(map[string][]byte),
		times:       make(map[string]FileTimes),
		dirs:        make(map[string]bool),
		openErrs:    make(map[string]error),
		createErrs:  make(map[string]error),
		statErrs:    make(map[string]error),
		removeErrs:  make(map[string]error),
		renameErrs:  make(map[string]error),
		chtimesErrs: make(map[string]error),
	}
}

// AddFile registers a file with content and explicit file times, creating
// parent directories implicitly.
func (m *MockFileSystem) AddFile(path string, content []byte, times FileTimes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.files[path] = content
	m.times[path] = times
	m.ensureParentsLocked(path)
}

// AddDir registers a directory, creating parents implicitly.
func (m *MockFileSystem) AddDir(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.dirs[path] = true
	m.ensureParentsLocked(path)
}

func (m *MockFileSystem) ensureParentsLocked(path string) {
	for dir := filepath.Dir(path); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		m.dirs[dir] = true
	}
}

// Exists reports whether a file or directory is registered at path.
func (m *MockFileSystem) Exists(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	path = filepath.Clean(path)
	_, file := m.files[path]
	return file || m.dirs[path]
}

// Content returns the stored content of path, or nil.
func (m *MockFileSystem) Content(path string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[filepath.Clean(path)]
}

// Error injection per operation and path.

func (m *MockFileSystem) FailOpen(path string, err error)    { m.openErrs[filepath.Clean(path)] = err }
func (m *MockFileSystem) FailCreate(path string, err error)  { m.createErrs[filepath.Clean(path)] = err }
func (m *MockFileSystem) FailStat(path string, err error)    { m.statErrs[filepath.Clean(path)] = err }
func (m *MockFileSystem) FailRemove(path string, err error)  { m.removeErrs[filepath.Clean(path)] = err }
func (m *MockFileSystem) FailRename(path string, err error)  { m.renameErrs[filepath.Clean(path)] = err }
func (m *MockFileSystem) FailChtimes(path string, err error) { m.chtimesErrs[filepath.Clean(path)] = err }

// Open returns a reader over the stored content.
func (m *MockFileSystem) Open(name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = filepath.Clean(name)
	if err := m.openErrs[name]; err != nil {
		return nil, err
	}
	content, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

type mockWriter struct {
	buf     bytes.Buffer
	onClose func([]byte)
}

func (w *mockWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *mockWriter) Close() error                { w.onClose(w.buf.Bytes()); return nil }

// CreateExclusive creates name, failing with fs.ErrExist when it is taken.
func (m *MockFileSystem) CreateExclusive(name string) (io.WriteCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	if err := m.createErrs[name]; err != nil {
		return nil, err
	}
	if _, ok := m.files[name]; ok || m.dirs[name] {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	}
	// Claim the name immediately, matching O_EXCL semantics.
	m.files[name] = nil
	m.times[name] = FileTimes{Created: time.Now(), Modified: time.Now(), Accessed: time.Now()}
	m.ensureParentsLocked(name)
	return &mockWriter{onClose: func(data []byte) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.files[name] = data
	}}, nil
}

// ReadFile returns the stored content of name.
func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = filepath.Clean(name)
	content, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return content, nil
}

// WriteFile stores content at name, overwriting any existing file.
func (m *MockFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	m.files[name] = data
	if _, ok := m.times[name]; !ok {
		m.times[name] = FileTimes{Created: time.Now(), Modified: time.Now(), Accessed: time.Now()}
	}
	m.ensureParentsLocked(name)
	return nil
}

type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *mockFileInfo) Name() string       { return fi.name }
func (fi *mockFileInfo) Size() int64        { return fi.size }
func (fi *mockFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *mockFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *mockFileInfo) IsDir() bool        { return fi.isDir }
func (fi *mockFileInfo) Sys() interface{}   { return nil }

type mockDirEntry struct{ fs.FileInfo }

func (e *mockDirEntry) Type() fs.FileMode          { return e.Mode().Type() }
func (e *mockDirEntry) Info() (fs.FileInfo, error) { return e.FileInfo, nil }

func (m *MockFileSystem) infoLocked(name string) (fs.FileInfo, error) {
	if content, ok := m.files[name]; ok {
		return &mockFileInfo{
			name:    filepath.Base(name),
			size:    int64(len(content)),
			mode:    0644,
			modTime: m.times[name].Modified,
		}, nil
	}
	if m.dirs[name] {
		return &mockFileInfo{
			name:  filepath.Base(name),
			mode:  0755 | os.ModeDir,
			isDir: true,
		}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// Stat returns file info for name.
func (m *MockFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = filepath.Clean(name)
	if err := m.statErrs[name]; err != nil {
		return nil, err
	}
	return m.infoLocked(name)
}

// ReadDir lists the direct children of name, sorted by filename.
func (m *MockFileSystem) ReadDir(name string) ([]fs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = filepath.Clean(name)
	if !m.dirs[name] {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	var entries []fs.DirEntry
	for _, child := range m.childrenLocked(name) {
		info, err := m.infoLocked(child)
		if err != nil {
			continue
		}
		entries = append(entries, &mockDirEntry{info})
	}
	return entries, nil
}

func (m *MockFileSystem) childrenLocked(dir string) []string {
	seen := make(map[string]bool)
	var children []string
	collect := func(path string) {
		if path == dir || !strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return
		}
		rest := strings.TrimPrefix(path, dir+string(filepath.Separator))
		child := filepath.Join(dir, strings.SplitN(rest, string(filepath.Separator), 2)[0])
		if !seen[child] {
			seen[child] = true
			children = append(children, child)
		}
	}
	for path := range m.files {
		collect(path)
	}
	for path := range m.dirs {
		collect(path)
	}
	sort.Strings(children)
	return children
}

// Glob matches pattern against every registered file and directory, sorted,
// mirroring filepath.Glob over the in-memory tree.
func (m *MockFileSystem) Glob(pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, err
	}
	var matches []string
	for path := range m.files {
		if ok, _ := filepath.Match(pattern, path); ok {
			matches = append(matches, path)
		}
	}
	for path := range m.dirs {
		if ok, _ := filepath.Match(pattern, path); ok {
			matches = append(matches, path)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// WalkDir walks the in-memory tree rooted at root in lexical order.
func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	root = filepath.Clean(root)
	m.mu.RLock()
	info, err := m.infoLocked(root)
	m.mu.RUnlock()
	if err != nil {
		return fn(root, nil, err)
	}
	return m.walk(root, &mockDirEntry{info}, fn)
}

func (m *MockFileSystem) walk(path string, d fs.DirEntry, fn fs.WalkDirFunc) error {
	err := fn(path, d, nil)
	if err != nil || !d.IsDir() {
		if err == fs.SkipDir && d.IsDir() {
			return nil
		}
		return err
	}
	m.mu.RLock()
	children := m.childrenLocked(path)
	m.mu.RUnlock()
	for _, child := range children {
		m.mu.RLock()
		info, err := m.infoLocked(child)
		m.mu.RUnlock()
		if err != nil {
			continue
		}
		if err := m.walk(child, &mockDirEntry{info}, fn); err != nil {
			if err == fs.SkipDir {
				break
			}
			return err
		}
	}
	return nil
}

// MkdirAll registers the directory and its parents.
func (m *MockFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	m.AddDir(path)
	return nil
}

// Remove deletes a file or empty directory.
func (m *MockFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	m.RemoveCalls = append(m.RemoveCalls, name)
	if err := m.removeErrs[name]; err != nil {
		return err
	}
	if _, ok := m.files[name]; ok {
		delete(m.files, name)
		delete(m.times, name)
		return nil
	}
	if m.dirs[name] {
		delete(m.dirs, name)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
}

// Rename moves a file, carrying its times along.
func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	m.RenameCalls = append(m.RenameCalls, [2]string{oldpath, newpath})
	if err := m.renameErrs[oldpath]; err != nil {
		return err
	}
	content, ok := m.files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	m.files[newpath] = content
	m.times[newpath] = m.times[oldpath]
	delete(m.files, oldpath)
	delete(m.times, oldpath)
	m.ensureParentsLocked(newpath)
	return nil
}

// Chtimes updates the accessed and modified times of name.
func (m *MockFileSystem) Chtimes(name string, atime time.Time, mtime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name = filepath.Clean(name)
	m.ChtimesCalls = append(m.ChtimesCalls, name)
	if err := m.chtimesErrs[name]; err != nil {
		return err
	}
	t, ok := m.times[name]
	if !ok {
		return &fs.PathError{Op: "chtimes", Path: name, Err: fs.ErrNotExist}
	}
	t.Accessed = atime
	t.Modified = mtime
	m.times[name] = t
	return nil
}

// Times returns the registered file times for name.
func (m *MockFileSystem) Times(name string) (FileTimes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = filepath.Clean(name)
	if err := m.statErrs[name]; err != nil {
		return FileTimes{}, err
	}
	t, ok := m.times[name]
	if !ok {
		return FileTimes{}, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return t, nil
}

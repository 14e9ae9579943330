package vm

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/daimatz/jweave/pkg/classfile"
)

// ClassLoader loads .class files by internal class name. Implementations
// must be safe for concurrent use.
type ClassLoader interface {
	LoadClass(name string) (*classfile.ClassFile, error)
}

// JmodClassLoader loads classes from a JDK jmod file.
type JmodClassLoader struct {
	JmodPath string

	mu        sync.Mutex
	cache     map[string]*classfile.ClassFile
	zipReader *zip.Reader
}

// NewJmodClassLoader creates a new JmodClassLoader.
func NewJmodClassLoader(jmodPath string) *JmodClassLoader {
	return &JmodClassLoader{
		JmodPath: jmodPath,
		cache:    make(map[string]*classfile.ClassFile),
	}
}

func (cl *JmodClassLoader) ensureZipReader() error {
	if cl.zipReader != nil {
		return nil
	}

	data, err := os.ReadFile(cl.JmodPath)
	if err != nil {
		return fmt.Errorf("jmod: reading %s: %w", cl.JmodPath, err)
	}
	if len(data) < 4 || !bytes.Equal(data[:2], []byte("JM")) {
		return fmt.Errorf("jmod: %s is not a jmod file", cl.JmodPath)
	}

	zipData := data[4:] // Skip "JM\x01\x00" header
	cl.zipReader, err = zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return fmt.Errorf("jmod: opening zip: %w", err)
	}
	return nil
}

func (cl *JmodClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cf, ok := cl.cache[name]; ok {
		return cf, nil
	}
	if err := cl.ensureZipReader(); err != nil {
		return nil, err
	}

	rc, err := cl.zipReader.Open("classes/" + name + ".class")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("jmod: %s in %s: %w", name, cl.JmodPath, ErrClassNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("jmod: opening %s: %w", name, err)
	}
	defer rc.Close()

	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("jmod: parsing %s: %w", name, err)
	}
	cl.cache[name] = cf
	return cf, nil
}

// UserClassLoader loads user classes from a classpath directory, delegating
// to the parent first.
type UserClassLoader struct {
	ClassPath string
	Parent    ClassLoader

	mu    sync.Mutex
	cache map[string]*classfile.ClassFile
}

// NewUserClassLoader creates a new UserClassLoader. parent may be nil.
func NewUserClassLoader(classPath string, parent ClassLoader) *UserClassLoader {
	return &UserClassLoader{
		ClassPath: classPath,
		Parent:    parent,
		cache:     make(map[string]*classfile.ClassFile),
	}
}

func (cl *UserClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	cl.mu.Lock()
	cf, ok := cl.cache[name]
	cl.mu.Unlock()
	if ok {
		return cf, nil
	}
	if cl.Parent != nil {
		if cf, err := cl.Parent.LoadClass(name); err == nil {
			return cf, nil
		}
	}

	path := filepath.Join(cl.ClassPath, filepath.FromSlash(name)+".class")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("user: %s: %w", name, ErrClassNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("user: %s: %w", name, err)
	}
	defer f.Close()
	cf, err = classfile.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("user: parsing %s: %w", name, err)
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cached, ok := cl.cache[name]; ok {
		return cached, nil
	}
	cl.cache[name] = cf
	return cf, nil
}

// MapClassLoader serves classes assembled in memory, such as the output of
// classfile.Builder.
type MapClassLoader struct {
	Parent ClassLoader

	mu      sync.RWMutex
	classes map[string]*classfile.ClassFile
}

func NewMapClassLoader(parent ClassLoader, classes ...*classfile.ClassFile) (*MapClassLoader, error) {
	cl := &MapClassLoader{Parent: parent, classes: make(map[string]*classfile.ClassFile)}
	for _, cf := range classes {
		if err := cl.Add(cf); err != nil {
			return nil, err
		}
	}
	return cl, nil
}

// Add makes cf available under its own name.
func (cl *MapClassLoader) Add(cf *classfile.ClassFile) error {
	name, err := cf.ClassName()
	if err != nil {
		return fmt.Errorf("map loader: %w", err)
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.classes[name] = cf
	return nil
}

// AddBytes parses and adds a serialised class.
func (cl *MapClassLoader) AddBytes(data []byte) error {
	cf, err := classfile.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("map loader: %w", err)
	}
	return cl.Add(cf)
}

func (cl *MapClassLoader) LoadClass(name string) (*classfile.ClassFile, error) {
	if cl.Parent != nil {
		if cf, err := cl.Parent.LoadClass(name); err == nil {
			return cf, nil
		}
	}
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	if cf, ok := cl.classes[name]; ok {
		return cf, nil
	}
	return nil, fmt.Errorf("map: %s: %w", name, ErrClassNotFound)
}

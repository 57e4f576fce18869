package vm

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/minivm/minijvm/pkg/classfile"
)

// BootstrapLoader reads class files from a single classpath directory,
// links them, and registers them in the method area. The method area
// doubles as the load cache.
type BootstrapLoader struct {
	ClassPath string
	area      *MethodArea
	log       zerolog.Logger
}

// NewBootstrapLoader creates a loader backed by the given method area.
func NewBootstrapLoader(classPath string, area *MethodArea, log zerolog.Logger) *BootstrapLoader {
	return &BootstrapLoader{ClassPath: classPath, area: area, log: log}
}

// Load returns the class for name, reading <classpath>/<name>.class on
// a cache miss. The file is fully buffered before parsing.
func (l *BootstrapLoader) Load(name string) (*Class, error) {
	if c, err := l.area.Lookup(name); err == nil {
		return c, nil
	}

	path := filepath.Join(l.ClassPath, name+".class")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading class %s", name)
	}
	l.log.Debug().Str("class", name).Str("path", path).Int("bytes", len(data)).Msg("class file read")

	return l.LoadBytes(data)
}

// LoadBytes decodes, links, and registers a class from an in-memory
// buffer.
func (l *BootstrapLoader) LoadBytes(data []byte) (*Class, error) {
	cf, err := classfile.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "decoding class file")
	}

	c, err := Link(cf)
	if err != nil {
		return nil, errors.Wrap(err, "linking class")
	}

	l.area.Register(c)
	l.log.Debug().Str("class", c.Descriptor).Int("methods", len(c.Methods)).Msg("class linked")
	return c, nil
}

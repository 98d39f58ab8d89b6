package inference

import (
	"sync"

	"github.com/a3tai/mcp-pdf-forms/internal/pdf/errors"
	"github.com/sirupsen/logrus"
)

// SessionCache keeps at most one live session, keyed by model path
type SessionCache struct {
	engine Engine
	logger logrus.FieldLogger

	mu      sync.Mutex
	session Session
	path    string
}

// NewSessionCache creates an empty cache
func NewSessionCache(engine Engine, logger logrus.FieldLogger) *SessionCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionCache{engine: engine, logger: logger}
}

// Get returns the cached session for modelPath. A new session is created
// when fresh is set, when the path differs from the cached one or when
// nothing is cached; the replaced session is closed.
func (c *SessionCache) Get(modelPath string, fresh bool) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && !fresh && c.path == modelPath {
		return c.session, nil
	}

	c.closeLocked()

	c.logger.WithFields(logrus.Fields{
		"model": modelPath,
		"fresh": fresh,
	}).Debug("creating inference session")

	session, err := c.engine.NewSession(modelPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeModelLoadFailed, "failed to create inference session", err)
	}

	c.session = session
	c.path = modelPath
	return session, nil
}

// Invalidate drops the cached session so the next Get recreates it
func (c *SessionCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

// Close releases the cached session
func (c *SessionCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.path = ""
	return err
}

func (c *SessionCache) closeLocked() {
	if c.session == nil {
		return
	}
	if err := c.session.Close(); err != nil {
		c.logger.WithError(err).Warn("failed to close inference session")
	}
	c.session = nil
	c.path = ""
}

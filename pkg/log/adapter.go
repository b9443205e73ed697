package log

import "github.com/sirupsen/logrus"

// BadgerAdapter bridges the badger.Logger interface onto a logrus entry so
// the crawl-state store logs through the crawl's own logger.
type BadgerAdapter struct {
	*logrus.Entry
}

// NewBadgerAdapter creates a new adapter around the given entry.
func NewBadgerAdapter(entry *logrus.Entry) *BadgerAdapter {
	return &BadgerAdapter{entry}
}

// Errorf logs an error message
func (l *BadgerAdapter) Errorf(f string, v ...interface{}) { l.Entry.Errorf(f, v...) }

// Warningf logs a warning message
func (l *BadgerAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warningf(f, v...) }

// Infof logs an info message
func (l *BadgerAdapter) Infof(f string, v ...interface{}) { l.Entry.Infof(f, v...) }

// Debugf logs a debug message
func (l *BadgerAdapter) Debugf(f string, v ...interface{}) { l.Entry.Debugf(f, v...) }

package jsonfile

import "os"

type options[T any] struct {
	indent          string
	fileMode        os.FileMode
	createIfMissing bool
	defaultValue    func() *T
}

// Option configures a File.
type Option[T any] func(*options[T])

// WithIndent sets the indentation used when saving. "" writes compact JSON.
func WithIndent[T any](indent string) Option[T] {
	return func(o *options[T]) { o.indent = indent }
}

// WithFileMode sets the permissions of saved files. Default is 0644.
func WithFileMode[T any](mode os.FileMode) Option[T] {
	return func(o *options[T]) { o.fileMode = mode }
}

// WithCreateIfMissing controls whether a missing file loads as the default
// value (and is marked dirty) or fails. Default is true.
func WithCreateIfMissing[T any](create bool) Option[T] {
	return func(o *options[T]) { o.createIfMissing = create }
}

// WithDefaultValue supplies the value used when the file does not exist.
func WithDefaultValue[T any](fn func() *T) Option[T] {
	return func(o *options[T]) { o.defaultValue = fn }
}

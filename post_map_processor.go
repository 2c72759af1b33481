package tkdb

// PostMapProcessor is an option that can be passed to NewMapper
//
// Any PostMapProcessor(s) passed to NewMapper are executed after a row has been mapped to an object
type PostMapProcessor[T any] interface {
	PostMap(row Row, obj *T) error
}

// PostMapProcessorFunc is a func adapter for PostMapProcessor
type PostMapProcessorFunc[T any] func(row Row, obj *T) error

func (fn PostMapProcessorFunc[T]) PostMap(row Row, obj *T) error {
	return fn(row, obj)
}

package entity

// Record is implemented by the value types stored as entities. WithID returns
// a copy of the record carrying id.
type Record[T any] interface {
	GetID() string
	WithID(id string) T
}

// Kind describes one entity type.
type Kind[T Record[T]] struct {
	// Name is the entity type name; it prefixes every record key.
	Name string
	// Index names the id list of an enumerable kind. Defaults to Name.
	Index string
	// Default returns the initial state of a record never written before.
	// A nil Default yields the zero value.
	Default func(id string) T
	// Prepare, when set, normalizes state every time it is read.
	Prepare func(T) T
	// Seeds populate the collection the first time it is touched.
	Seeds []T
}

// Key returns the store key of the record id of this kind.
func (k *Kind[T]) Key(id string) string {
	return RecordKey(k.Name, id)
}

func (k *Kind[T]) indexName() string {
	if k.Index != "" {
		return k.Index
	}
	return k.Name
}

func (k *Kind[T]) initial(id string) T {
	var v T
	if k.Default != nil {
		v = k.Default(id)
	}
	return v.WithID(id)
}

func (k *Kind[T]) prepare(v T) T {
	if k.Prepare != nil {
		return k.Prepare(v)
	}
	return v
}

// RecordKey derives the store key of a record from its kind name and id.
func RecordKey(kind, id string) string {
	return kind + ":" + id
}

// IndexKey derives the store key of a collection index.
func IndexKey(index string) string {
	return "index:" + index
}

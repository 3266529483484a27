package localstore

// PutRaw writes an unencoded value, letting tests plant corrupted records.
func PutRaw(s *Store, key, value string) error {
	return s.put(key, value)
}

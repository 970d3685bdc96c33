package badger

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the two data
// types into namespaces. Domain and map names never contain NUL (see
// store.ValidateName), so NUL separates the components and keeps one map's
// entries contiguous in key order.
//
// Data Type     Prefix   Key Format                         Value Type
// =====================================================================
// Map entry     "e:"     e:<domain>\0<map>\0<key>           value bytes
// Map header    "o:"     o:<domain>\0<map>                  order (uint32 BE)
//
// A map exists iff its header exists, so empty maps survive restarts.
// Enumeration is a prefix scan over "e:<domain>\0<map>\0", which yields
// keys in byte order.

const (
	prefixEntry  = "e:"
	prefixHeader = "o:"
)

func headerPrefix(domain string) []byte {
	return []byte(prefixHeader + domain + "\x00")
}

func headerKey(domain, mapName string) []byte {
	return []byte(prefixHeader + domain + "\x00" + mapName)
}

func entryPrefix(domain, mapName string) []byte {
	return []byte(prefixEntry + domain + "\x00" + mapName + "\x00")
}

func entryKey(domain, mapName string, key []byte) []byte {
	return append(entryPrefix(domain, mapName), key...)
}

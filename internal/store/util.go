package store

func toBool(val interface{}) bool {
	switch v := val.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		return v == "1" || v == "true" || v == "on"
	default:
		return false
	}
}

// Helper to select which endpoint to use
func chooseEndpoint(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

package port

// QueryValidator gates SQL statements before execution.
type QueryValidator interface {
	Validate(sql string) error
}

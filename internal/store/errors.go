package store

import "errors"

// ErrReentrantTransaction is not returned anywhere in this package.
// Store.Run has no re-entrancy guard: a Run called from inside another
// Run's callback begins a second, independent transaction on the
// Store's root *gorm.DB instead of joining the outer one.
var ErrReentrantTransaction = errors.New("store: re-entrant transaction")

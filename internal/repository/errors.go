package repository

import "errors"

// ErrNoCredential indicates the local session holds no credential.
var ErrNoCredential = errors.New("repository: no credential")

package bherrors

// NoRecordFound - Custom error to inform that no record was found
type NoRecordFound struct {
	msg string
}

// Error - Used to notify that no record was found
func (E NoRecordFound) Error() string {
	if E.msg == "" {
		return "no record found"
	}
	return E.msg
}

// MissingMetadata - Custom error to inform that a metadata file to restore from is missing or empty
type MissingMetadata struct {
	msg string
}

// Error - Used to notify that metadata could not be restored
func (M MissingMetadata) Error() string {
	if M.msg == "" {
		return "metadata file missing or empty"
	}
	return M.msg
}

// BlockTooSmall - Custom error to inform that an encoded block does not fit in the configured block size
type BlockTooSmall struct {
	msg string
}

// Error - Used to notify that the block size is too small
func (B BlockTooSmall) Error() string {
	if B.msg == "" {
		return "encoded block exceeds block size"
	}
	return B.msg
}

// RecordEncoding - Custom error to inform that a record encoded to a length different from its declared size
type RecordEncoding struct {
	msg string
}

// Error - Used to notify a record encoding mismatch
func (R RecordEncoding) Error() string {
	if R.msg == "" {
		return "record encoding size mismatch"
	}
	return R.msg
}

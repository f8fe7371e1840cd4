package sqlc

// HasAssignmentMetadata reports whether every assignment column of n is set.
func (n *Number) HasAssignmentMetadata() bool {
	return n.ConsultantID.Valid &&
		n.ConsultantAccount.Valid &&
		n.ClientName.Valid &&
		n.ClientTaxID.Valid &&
		n.AssignedAt.Valid
}

// HasAnyAssignmentMetadata reports whether at least one assignment column of n
// is set. An item that is not ASSIGNED must report false.
func (n *Number) HasAnyAssignmentMetadata() bool {
	return n.ConsultantID.Valid ||
		n.ConsultantAccount.Valid ||
		n.ClientName.Valid ||
		n.ClientTaxID.Valid ||
		n.AssignedAt.Valid
}

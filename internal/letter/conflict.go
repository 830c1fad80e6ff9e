package letter

// Conflict describes a local and a remote version that disagree with the
// last synced state. Resolving it is always left to the user.
type Conflict struct {
	Filename string
	Message  string
	Local    Content
	Remote   Content
}

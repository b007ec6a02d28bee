package core

// Author is the user a message or remark is attributed to.
type Author struct {
	ID        string
	Name      string
	AvatarURL string
}

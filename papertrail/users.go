package papertrail

import (
	"context"
	"fmt"
)

// User is a member of the account.
type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

// Users lists the account's members.
type Users struct {
	collection[User]
	client *Client
}

func newUsers(client *Client) *Users {
	return &Users{client: client}
}

// Load fetches all users.
func (u *Users) Load(ctx context.Context) error {
	var users []*User
	if err := u.client.getJSON(ctx, "users.json", nil, &users); err != nil {
		return newError(KindUsers, "load", err)
	}
	u.replace(users, now())
	return nil
}

type inviteRequest struct {
	Email    string `json:"email"`
	ReadOnly bool   `json:"read_only"`
}

// Invite sends an account invitation to email. The invited user shows up
// after the next Load.
func (u *Users) Invite(ctx context.Context, email string, readOnly bool) error {
	if email == "" {
		return invalidParameter(KindUsers, "invite", "email must not be empty")
	}
	payload := map[string]inviteRequest{"user": {Email: email, ReadOnly: readOnly}}
	if err := u.client.postJSON(ctx, "users/invite.json", payload, nil); err != nil {
		return newError(KindUsers, "invite", err)
	}
	log.WithField("email", email).Info("User invited")
	return nil
}

// Delete removes the user from the account.
func (u *Users) Delete(ctx context.Context, id int) error {
	if err := u.client.delete(ctx, fmt.Sprintf("users/%d.json", id), nil); err != nil {
		return newError(KindUsers, "delete", err)
	}
	u.remove(func(x *User) bool { return x.ID == id })
	return nil
}

func (u *Users) ByEmail(email string) (*User, error) {
	if user, ok := u.find(func(x *User) bool { return x.Email == email }); ok {
		return user, nil
	}
	return nil, notFound(KindUsers, "lookup", fmt.Sprintf("email %q", email))
}

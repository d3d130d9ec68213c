package seed

import (
	"context"
	"fmt"
	"os"

	"hearth/internal/models"
	"hearth/internal/validation"

	"gopkg.in/yaml.v3"
)

// Scenario is a hand-written data set. Users are referenced by username
// and groups by name everywhere else in the file.
//
//	users:
//	  - username: alice
//	    name: Alice Liddell
//	follows:
//	  - {from: alice, to: bob}
//	groups:
//	  - name: Gardeners
//	    creator: alice
//	    members: [bob]
//	posts:
//	  - author: bob
//	    group: Gardeners
//	    content: Tomatoes are in.
//	    likes: [alice]
//	    comments:
//	      - {author: alice, content: Finally!}
//	chats:
//	  - between: [alice, bob]
//	    messages:
//	      - {from: alice, content: hi}
type Scenario struct {
	Users   []scenarioUser   `yaml:"users"`
	Follows []scenarioFollow `yaml:"follows"`
	Groups  []scenarioGroup  `yaml:"groups"`
	Posts   []scenarioPost   `yaml:"posts"`
	Chats   []scenarioChat   `yaml:"chats"`
}

type scenarioUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Bio      string `yaml:"bio"`
	Avatar   string `yaml:"avatar"`
}

type scenarioFollow struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type scenarioGroup struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Creator     string   `yaml:"creator"`
	Members     []string `yaml:"members"`
}

type scenarioComment struct {
	Author  string `yaml:"author"`
	Content string `yaml:"content"`
}

type scenarioPost struct {
	Author   string            `yaml:"author"`
	Group    string            `yaml:"group"`
	Content  string            `yaml:"content"`
	Image    string            `yaml:"image"`
	Likes    []string          `yaml:"likes"`
	Comments []scenarioComment `yaml:"comments"`
}

type scenarioMessage struct {
	From    string `yaml:"from"`
	Content string `yaml:"content"`
}

type scenarioChat struct {
	Between  []string          `yaml:"between"`
	Messages []scenarioMessage `yaml:"messages"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes a scenario document and checks every reference.
func ParseScenario(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate reports the first malformed entry or dangling reference.
func (sc *Scenario) Validate() error {
	users := make(map[string]struct{}, len(sc.Users))
	for _, u := range sc.Users {
		if err := validation.ValidateUsername(u.Username); err != nil {
			return fmt.Errorf("user %q: %w", u.Username, err)
		}
		if _, dup := users[u.Username]; dup {
			return fmt.Errorf("user %q declared twice", u.Username)
		}
		users[u.Username] = struct{}{}
	}
	known := func(ctx, name string) error {
		if _, ok := users[name]; !ok {
			return fmt.Errorf("%s: unknown user %q", ctx, name)
		}
		return nil
	}

	for _, f := range sc.Follows {
		if err := known("follow", f.From); err != nil {
			return err
		}
		if err := known("follow", f.To); err != nil {
			return err
		}
		if f.From == f.To {
			return fmt.Errorf("follow: %q cannot follow themselves", f.From)
		}
	}

	groups := make(map[string]struct{}, len(sc.Groups))
	for _, g := range sc.Groups {
		if err := validation.ValidateGroupName(g.Name); err != nil {
			return fmt.Errorf("group %q: %w", g.Name, err)
		}
		if _, dup := groups[g.Name]; dup {
			return fmt.Errorf("group %q declared twice", g.Name)
		}
		groups[g.Name] = struct{}{}
		if err := known("group "+g.Name, g.Creator); err != nil {
			return err
		}
		for _, m := range g.Members {
			if err := known("group "+g.Name, m); err != nil {
				return err
			}
		}
	}

	for i, p := range sc.Posts {
		where := fmt.Sprintf("post %d", i+1)
		if err := known(where, p.Author); err != nil {
			return err
		}
		if err := validation.ValidateContent("content", p.Content, validation.MaxPostLength); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if p.Group != "" {
			if _, ok := groups[p.Group]; !ok {
				return fmt.Errorf("%s: unknown group %q", where, p.Group)
			}
		}
		for _, l := range p.Likes {
			if err := known(where, l); err != nil {
				return err
			}
		}
		for _, c := range p.Comments {
			if err := known(where, c.Author); err != nil {
				return err
			}
			if err := validation.ValidateContent("comment", c.Content, validation.MaxCommentLength); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
		}
	}

	for i, c := range sc.Chats {
		where := fmt.Sprintf("chat %d", i+1)
		if len(c.Between) != 2 || c.Between[0] == c.Between[1] {
			return fmt.Errorf("%s: between needs two different users", where)
		}
		for _, u := range c.Between {
			if err := known(where, u); err != nil {
				return err
			}
		}
		for _, m := range c.Messages {
			if m.From != c.Between[0] && m.From != c.Between[1] {
				return fmt.Errorf("%s: sender %q is not in the chat", where, m.From)
			}
			if err := validation.ValidateContent("message", m.Content, validation.MaxMessageLength); err != nil {
				return fmt.Errorf("%s: %w", where, err)
			}
		}
	}
	return nil
}

// ApplyScenario persists sc. Group posts by non-members are rejected the
// same way the API rejects them.
func (s *Seeder) ApplyScenario(ctx context.Context, sc *Scenario) (Summary, error) {
	users := make(map[string]*models.User, len(sc.Users))
	for _, su := range sc.Users {
		u := s.factory.BuildUser(su.Username)
		if su.Email != "" {
			u.Email = su.Email
		}
		if su.Name != "" {
			u.Name = su.Name
		}
		if su.Bio != "" {
			u.Bio = su.Bio
		}
		if su.Avatar != "" {
			u.Avatar = su.Avatar
		}
		if err := s.db.WithContext(ctx).Omit("Following", "Groups").Create(u).Error; err != nil {
			return s.summary, fmt.Errorf("create user %s: %w", su.Username, err)
		}
		users[su.Username] = u
		s.summary.Users++
	}
	id := func(name string) uint { return users[name].ID }

	follows := make([]models.UserFollow, 0, len(sc.Follows))
	for _, f := range sc.Follows {
		follows = append(follows, models.UserFollow{FollowerID: id(f.From), FolloweeID: id(f.To)})
	}
	if err := s.insertFollows(ctx, follows); err != nil {
		return s.summary, fmt.Errorf("create follows: %w", err)
	}

	groups := make(map[string]*models.Group, len(sc.Groups))
	for _, sg := range sc.Groups {
		members := make([]uint, 0, len(sg.Members))
		for _, m := range sg.Members {
			members = append(members, id(m))
		}
		g := &models.Group{Name: sg.Name, Description: sg.Description, CreatorID: id(sg.Creator)}
		created, err := s.createGroup(ctx, g, members)
		if err != nil {
			return s.summary, fmt.Errorf("create group %s: %w", sg.Name, err)
		}
		groups[sg.Name] = created
	}

	for i, sp := range sc.Posts {
		post := &models.Post{Content: sp.Content, Image: sp.Image, UserID: id(sp.Author)}
		if sp.Group != "" {
			g := groups[sp.Group]
			if !g.HasMember(post.UserID) {
				return s.summary, fmt.Errorf("post %d: %s is not a member of %s", i+1, sp.Author, sp.Group)
			}
			gid := g.ID
			post.GroupID = &gid
		}
		if err := s.createPost(ctx, post); err != nil {
			return s.summary, fmt.Errorf("create post %d: %w", i+1, err)
		}
		for _, cm := range sp.Comments {
			comment := &models.Comment{Content: cm.Content, PostID: post.ID, UserID: id(cm.Author)}
			if err := s.createComment(ctx, comment); err != nil {
				return s.summary, fmt.Errorf("comment on post %d: %w", i+1, err)
			}
		}
		likers := make([]uint, 0, len(sp.Likes))
		for _, l := range sp.Likes {
			likers = append(likers, id(l))
		}
		if err := s.like(ctx, post.ID, likers); err != nil {
			return s.summary, fmt.Errorf("like post %d: %w", i+1, err)
		}
	}

	for i, ch := range sc.Chats {
		a, b := id(ch.Between[0]), id(ch.Between[1])
		msgs := ch.Messages
		if err := s.directChat(ctx, a, b, msgs, func(j int) uint { return id(msgs[j].From) }); err != nil {
			return s.summary, fmt.Errorf("chat %d: %w", i+1, err)
		}
	}

	return s.summary, nil
}

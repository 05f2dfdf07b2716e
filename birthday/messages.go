package birthday

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

// Messages is the default pool of announcements. Each entry takes the
// birthday user's mention as its only argument.
var Messages = []string{
	"🎂 Happy Birthday %s! You're not old, you're just well-seasoned!",
	"🎈 %s has leveled up IRL! +1 year, +10 wisdom, -5 metabolism",
	"🎉 Happy Birthday %s! You're officially vintage now 🍷",
	"✨ %s just hit a new personal record for staying alive! Congrats! 🏆",
	"🎂 Happy Birthday %s! Don't worry, you don't look a day over whatever age makes you feel good",
	"🎊 %s spawned into this world on this day! /played is getting concerning...",
	"🎈 It's %s's birthday! May your repair bills be low and your parses be high! ⚔️",
	"🎂 %s is another year closer to becoming a raid boss! Happy Birthday!",
	"🎉 Happy Birthday %s! You've unlocked the achievement: [Survived Another Year]",
	"✨ %s has entered the chat... a year older! Happy Birthday!",
	"🥳 Happy Birthday %s! Remember: age is just a number... a really big number",
	"🎊 Ding! %s leveled up again! (jk we don't know your age)",
	"🎂 Happy Birthday %s! May your pulls be legendary and your wipes be few! 🐉",
	"🎈 %s has been alive for another revolution around the sun! Achievement unlocked! 🌍",
	"🥳 Happy Birthday %s! You're not getting older, you're increasing in value!",
	"🎉 %s popped out of the character creation screen on this day! Happy Birthday!",
	"✨ Happy Birthday %s! Time to eat cake and pretend calories don't exist! 🍰",
	"🎂 %s is celebrating their annual respawn day! Happy Birthday!",
	"🥳 %s's mom completed a mythic+ delivery on this day! Happy Birthday! 👶",
	"🎊 Happy Birthday %s! The loot gods smile upon you today... probably 🎰",
}

// lockedRand makes a *rand.Rand safe to share.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomPicker returns a Picker seeded from the clock.
func NewRandomPicker() Picker {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

// PickMessage formats a random message from pool for mention.
func PickMessage(picker Picker, pool []string, mention string) string {
	if len(pool) == 0 {
		pool = Messages
	}
	return fmt.Sprintf(pool[picker.Intn(len(pool))], mention)
}

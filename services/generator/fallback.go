package generator

import (
	"math/rand/v2"

	"moralduel-controlplane/services/cases"
)

type dilemma struct {
	title     string
	context   string
	verdict   cases.Side
	reasoning string
}

// catalog backs case generation when no AI provider is configured.
var catalog = []dilemma{
	{
		title:   "Should you report a friend who cheated on a professional exam?",
		context: "Your close friend admits they saw the questions of a nursing licence exam the night before and passed. They are now working in a hospital and by all accounts doing well. Reporting them would end their career; staying silent means a certification process was undermined.",
		verdict: cases.SideYes,
		reasoning: "Licensing exists to protect patients who cannot judge competence themselves. Loyalty to a friend does not outweigh " +
			"the duty to the public that relies on the integrity of the certification, even if the friend appears competent today.",
	},
	{
		title:   "Is it acceptable to keep extra change a cashier gave you by mistake?",
		context: "At a busy supermarket the cashier hands you twenty dollars too much in change. You notice only in the car park. The store is a large chain, but cashiers at this store are known to cover shortfalls from their own pay when their till does not balance.",
		verdict: cases.SideNo,
		reasoning: "The money is not yours and the loss likely lands on a low paid worker rather than the chain. " +
			"Returning it costs a few minutes while keeping it knowingly transfers harm to someone who did nothing wrong.",
	},
	{
		title:   "Should a self-driving car prioritise its passenger over pedestrians?",
		context: "A manufacturer must decide how its autonomous cars behave in unavoidable crashes. Buyers say they will not purchase a car that might sacrifice them, yet programming cars to always protect the passenger could cost more lives overall when several pedestrians are at risk.",
		verdict: cases.SideNo,
		reasoning: "A rule that always favours the passenger treats pedestrians, who never accepted the risk of the vehicle, as expendable. " +
			"Minimising total harm is the more defensible default, and it can be made public so buyers consent knowingly.",
	},
	{
		title:   "Is it right to read your teenager's private messages to keep them safe?",
		context: "A parent notices their sixteen year old has become withdrawn and secretive, spending nights on their phone. There is no concrete sign of danger, but the parent knows the password and is considering reading the messages without telling them.",
		verdict: cases.SideNo,
		reasoning: "Without a concrete sign of danger, covert surveillance damages the trust that makes a teenager likely to ask for help. " +
			"A direct conversation respects their growing autonomy and keeps more serious intervention available if warning signs appear.",
	},
}

func pickDilemma() dilemma {
	return catalog[rand.IntN(len(catalog))]
}

func lookupDilemma(title string) (dilemma, bool) {
	for _, d := range catalog {
		if d.title == title {
			return d, true
		}
	}
	return dilemma{}, false
}

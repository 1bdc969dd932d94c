package ai

// ExtractPrompt asks the model to pull legal concepts and their relations
// out of a passage. Substitutions: entity types, edge types.
const ExtractPrompt = `You are reading a legal or tenant-advocacy document.

Identify every distinct legal concept in the text below and classify each as
one of these types: %s.

Then identify directed relationships between the concepts you found, using
only these relationship types: %s. The "from" side always comes first:
- APPLIES_TO: from an issue to the law or rule that governs it
- ENABLES: from a law to the remedy it makes available
- AVAILABLE_VIA: from a remedy to the procedure that obtains it
- REQUIRES: from a procedure to the kind of evidence it requires

For every concept, copy a short verbatim quote from the text that supports
it. Do not invent concepts or relationships that the text does not state.`

// ConfirmPrompt asks whether two named concepts denote the same real-world
// legal concept. Substitutions: type, name A, description A, name B,
// description B.
const ConfirmPrompt = `Two %s entries may refer to the same real-world legal concept.

A: %s — %s
B: %s — %s

Answer whether A and B denote the same concept. Different names for the same
statute, doctrine, remedy, or procedure count as the same concept. Related
but distinct concepts (for example a statute and a remedy it creates) do not.`

// ExplainPrompt asks for a plain-language explanation of a verified proof
// chain. Substitution: the chain rendered as "FROM -TYPE-> TO" lines.
const ExplainPrompt = `Explain the following chain of legal reasoning in plain language for a
person without legal training. Do not add claims beyond the listed steps.

%s`

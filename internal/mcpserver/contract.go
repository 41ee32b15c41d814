package mcpserver

// RecordFormat describes the superhero record shape and the rules tools
// enforce, for LLM consumers creating or editing records.
const RecordFormat = `# Superhero Record Format

## Fields

| Field | Type | Rules |
|---|---|---|
| id | string | Assigned on create, never changes |
| nickname | string | Required, non-blank |
| real_name | string | Required, non-blank |
| origin_description | string | Required, non-blank |
| catch_phrase | string | Required, non-blank |
| superpowers | list of strings | Optional; pass as one comma-separated string |
| images | list of URLs | Managed by attach_image and remove_superhero_image |
| created_at / updated_at | RFC 3339 time | Set by the server |

## Rules

1. Updates replace every descriptive field. Send the current values for fields you do not mean to change.
2. Images are only ever appended by attach_image; updates never drop images.
3. Remove an image with remove_superhero_image using the exact URL from the record.
4. Deleting a record keeps its image files.
5. Listings are newest first; page size defaults to 5.
6. Images must be png, jpeg, gif, webp or bmp and no larger than the configured limit (10 MB by default).
`

package sqlinline

const QProjectsEnsureSchema = `--sql 77e1ef46-5517-453e-92e2-dc3d3994dbd1
create table if not exists projects (
  project_id  text primary key,
  prompt      text        not null,
  backend     text        not null,
  status      text        not null,
  files       jsonb       not null default '[]'::jsonb,
  output      text        not null default '',
  error       text        not null default '',
  metadata    jsonb,
  version     bigint      not null default 1,
  created_at  timestamptz not null default now(),
  updated_at  timestamptz not null default now()
);
create index if not exists projects_created_at_idx on projects (created_at desc);
create index if not exists projects_status_idx on projects (status);
`

const QProjectInsert = `--sql 9a69f091-b917-4524-9362-9ffb274fd7fa
insert into projects (
  project_id, prompt, backend, status, files, output, error, metadata, version, created_at, updated_at
)
values ($1, $2, $3, $4, $5::jsonb, $6, $7, $8::jsonb, $9, $10, $11);
`

const QProjectGet = `--sql 78de6f4e-a22a-48f9-82e5-718ecf1c852b
select project_id, prompt, backend, status, files, output, error, metadata, version, created_at, updated_at
from projects
where project_id = $1;
`

// QProjectUpdate writes only the non-null parameters. $7 lists the statuses the
// row may currently be in; a null list always matches, an empty one never does.
const QProjectUpdate = `--sql d73a60cf-501f-4959-b32f-aa3ea6ccb13f
update projects
set status     = coalesce($2, status),
    files      = coalesce($3::jsonb, files),
    output     = coalesce($4, output),
    error      = coalesce($5, error),
    metadata   = coalesce($6::jsonb, metadata),
    version    = version + 1,
    updated_at = now()
where project_id = $1
  and ($7::text[] is null or status = any($7::text[]))
returning project_id, prompt, backend, status, files, output, error, metadata, version, created_at, updated_at;
`

const QProjectExists = `--sql 69cf28a6-ed1c-475d-bb33-345bea657efa
select exists(select 1 from projects where project_id = $1);
`

const QProjectList = `--sql 94a776ba-a390-4996-b89b-cb7896317a13
select project_id, prompt, backend, status, files, output, error, metadata, version, created_at, updated_at
from projects
where ($1::text is null or status = $1)
  and ($2::text is null or backend = $2)
order by created_at desc
limit $3 offset $4;
`

const QProjectStats = `--sql 8210ce57-6a9f-43e2-82c7-ea23b59016de
select status, count(*)
from projects
group by status;
`
